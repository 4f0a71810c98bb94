package main

import "neurodb/internal/cli"

func main() {
	cli.Execute()
}
