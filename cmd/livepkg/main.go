package main

import "github.com/livepkg/livepkg/pkg/cmd"

func main() {
	cmd.Execute()
}
