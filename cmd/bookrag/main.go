package main

import "bookrag/internal/cli"

func main() {
	cli.Execute()
}
