package main

import (
	"os"

	"anniversary_server/cli"
)

func main() {
	os.Exit(cli.Execute())
}
