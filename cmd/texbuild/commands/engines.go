package commands

import (
	"context"
	"fmt"
)

// EnginesCmd implements the 'engines' command: validate the configured engine
// and print its version banner.
type EnginesCmd struct{}

func (e *EnginesCmd) Run(_ *Global, root *CLI) error {
	cfg, err := LoadConfig(root)
	if err != nil {
		return err
	}

	eng := newEngine(cfg)
	banner, err := eng.Validate(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", cfg.Engine.Binary, banner)
	return nil
}
