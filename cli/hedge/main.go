package main

import (
	"os"

	hedgecmder "github.com/papercomputeco/hedge/cmd/hedge"
)

func main() {
	cmd := hedgecmder.NewHedgeCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
