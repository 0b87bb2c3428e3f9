package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("path should contain sendMessage, got %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	note := Notification{At: time.Now(), Reason: "implausible travel speed between fixes", Device: "dev-1"}

	if err := notifier.Notify(context.Background(), note); err != nil {
		t.Fatalf("notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id wrong: %#v", received)
	}
	if !strings.Contains(received["text"], "implausible travel speed") {
		t.Fatalf("rendered text should contain the reason: %q", received["text"])
	}
	if !strings.Contains(received["text"], "dev-1") {
		t.Fatalf("rendered text should contain the device: %q", received["text"])
	}
}

func TestTelegramNotifierNotOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), Notification{At: time.Now(), Reason: "x"}); err == nil {
		t.Fatal("ok=false should error")
	}
}

func TestTelegramNotifierHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, zerolog.Nop())
	if err := notifier.Notify(context.Background(), Notification{At: time.Now(), Reason: "x"}); err == nil {
		t.Fatal("HTTP 502 should error")
	}
}
