package main

import (
	"os"

	"github.com/iniwex5/shaiya-go/cmd/shaiyactl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
