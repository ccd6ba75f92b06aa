package main

import "github.com/ViVse/ecg-v2/cli"

var version = "dev"

func main() {
	cli.Execute(version)
}
