package main

import (
	"os"

	"github.com/arwahdevops/shipmigrate/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
