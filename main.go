package main

import "vodpick/cmd"

func main() {
	cmd.Execute()
}
