package main

import (
	"os"

	"github.com/restoreops/rds-restore/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
