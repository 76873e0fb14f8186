package main

import (
	"os"

	"github.com/solatis/wafscope/cmd/wafscope/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
