// Package main is the entry point for the postid delivery date server.
package main

import (
	"os"

	"github.com/geekuality/posti-delivery-dates/cmd/postid/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
