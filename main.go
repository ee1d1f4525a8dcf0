package main

import "github.com/timvw/volume-patrol/cmd"

func main() {
	cmd.Execute()
}
