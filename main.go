package main

import (
	"os"

	"github.com/eliotheinrich/pysims/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
