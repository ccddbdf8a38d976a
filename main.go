package main

import "github.com/hirestack/realtime/cmd/realtimectl/cmd"

func main() {
	cmd.Execute()
}
