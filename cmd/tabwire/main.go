package main

import "github.com/tabwire/tabwire/internal/cli"

func main() {
	cli.Execute()
}
