package main

import "github.com/starlink-awaken/omo-quota/internal/cli"

func main() {
	cli.Execute()
}
