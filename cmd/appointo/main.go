package main

import "appointo/internal/cli"

func main() {
	cli.Execute()
}
