package main

import (
	"fmt"

	"github.com/cpcf/nsisgen/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	if err := config.Save(root.Config, config.SampleOptions(), i.Force); err != nil {
		return err
	}
	fmt.Fprintf(g.Stdout, "wrote %s\n", root.Config)
	return nil
}
