package main

import (
	"location-spoof-guard/internal/cli"
)

func main() {
	cli.Execute()
}
