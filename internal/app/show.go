package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent fraud events.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show fraud events")
	}
	if closeStore != nil {
		defer closeStore()
	}

	events, err := store.ListRecentFraudEvents(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stdout, "no fraud events found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTime (UTC)\tReason")

	for _, event := range events {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\n",
			event.ID,
			event.At.UTC().Format(time.RFC3339),
			event.Reason,
		)
	}

	writer.Flush()
	return nil
}
