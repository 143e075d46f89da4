package main

import (
	"os"

	"github.com/bluewing/auth-core/cmd/authctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
