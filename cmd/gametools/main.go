package main

import "gametools/cmd/gametools/commands"

func main() {
	commands.Execute()
}
