package main

import (
	"os"

	"dockyard/src/cli"
)

func main() {
	os.Exit(cli.Execute())
}
