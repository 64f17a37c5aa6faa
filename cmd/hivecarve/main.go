package main

import "github.com/joshuapare/hivecarve/internal/cli"

func main() {
	cli.Execute()
}
