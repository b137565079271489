package main

import "github.com/Davincible/llm-bridge/cmd"

func main() {
	cmd.Execute()
}
