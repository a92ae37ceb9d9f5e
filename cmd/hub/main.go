package main

import (
	"fmt"
	"os"

	"agenthub/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "agenthub:", err)
		os.Exit(1)
	}
	if err := application.Run(); err != nil {
		application.Logger().Error("agenthub stopped", "error", err)
		os.Exit(1)
	}
}
