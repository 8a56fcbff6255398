package main

import "github.com/externos/hubd/cmd/hubd/commands"

func main() {
	commands.Execute()
}
