package main

import "github.com/sadopc/dwell/internal/cli"

func main() {
	cli.Execute()
}
