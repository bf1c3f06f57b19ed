package main

import (
	"os"

	"iflow_prompt_generator/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
