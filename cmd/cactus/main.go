package main

import "github.com/blacktop/go-cactus/cmd/cactus/cmd"

func main() {
	cmd.Execute()
}
