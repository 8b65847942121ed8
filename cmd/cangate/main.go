package main

import "github.com/ppiankov/cangate/internal/cli"

func main() {
	cli.Execute()
}
