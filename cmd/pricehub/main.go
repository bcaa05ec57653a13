package main

import "github.com/rustyeddy/pricehub/internal/cli"

func main() {
	cli.Execute()
}
