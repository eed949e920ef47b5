package main

import (
	"fmt"
	"os"

	"github.com/waabox/pipedeck/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

func (i *InitCmd) Run(root *CLI) error {
	if _, err := os.Stat(root.Config); err == nil && !i.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", root.Config)
	}
	if err := config.Save(root.Config, config.Default()); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Printf("Configuration written to %s\n", root.Config)
	return nil
}
