package main

import "backend-socialpost/cmd/socialctl/commands"

func main() {
	commands.Execute()
}
