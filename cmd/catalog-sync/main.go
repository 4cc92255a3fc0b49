// Package main is the entry point for the catalog-sync CLI.
package main

import (
	"os"

	"github.com/firmforge/catalog-sync/cmd/catalog-sync/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
