package main

import (
	"github.com/openplace/pixelfield/internal/cli"
)

func main() {
	cli.Execute()
}
