package main

import (
	"os"

	"verylup/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args))
}
