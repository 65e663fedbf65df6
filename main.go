package main

import (
	"fmt"
	"os"

	"github.com/putto11262002/peerchat/internal/command"
)

func main() {
	cmd := command.NewRootCmd(command.Version)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
