package main

import "github.com/djcass44/pmbuild/cmd"

var version = "0.0.0-dev"

func main() {
	cmd.Execute(version)
}
