package main

import "github.com/charliek/catview/internal/cli"

func main() {
	cli.Execute()
}
