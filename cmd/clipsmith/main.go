package main

import "github.com/forPelevin/clipsmith/internal/cli"

func main() {
	cli.Main()
}
