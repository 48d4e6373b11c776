package main

import (
	"fmt"
	"os"

	"github.com/autopeer-io/amrfleet/cmd/amr-fleetctl/app"
)

func main() {
	if err := app.NewRootCommand(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
