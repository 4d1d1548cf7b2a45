package main

import (
	"os"

	"simpletasks/cmd/simpletasks/cmd"
)

func main() {
	os.Exit(cmd.Execute(os.Args[1:], os.Stdout, os.Stderr, nil))
}
