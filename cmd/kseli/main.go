package main

import (
	"fmt"
	"os"

	"github.com/kseli/kseli-go/cmd/kseli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
