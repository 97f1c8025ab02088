package main

import (
	"os"

	"github.com/dgnsrekt/shotover_agent/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
