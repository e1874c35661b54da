package main

import (
	"github.com/Tricejer41/FirstLight/internal/cli"
)

func main() {
	cli.Execute()
}
