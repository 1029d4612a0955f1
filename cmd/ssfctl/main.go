package main

import (
	"os"

	"github.com/ssfkit/ssf-transmit-go/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
