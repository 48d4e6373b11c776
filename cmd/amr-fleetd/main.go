package main

import (
	"github.com/autopeer-io/amrfleet/cmd/amr-fleetd/app"
)

func main() {
	app.NewApp().Run()
}
