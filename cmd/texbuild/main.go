package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/texbuild/texbuild/cmd/texbuild/commands"
	texerrors "github.com/texbuild/texbuild/internal/errors"
	"github.com/texbuild/texbuild/internal/logfields"
	"github.com/texbuild/texbuild/internal/version"
)

func main() {
	var cli commands.CLI
	ctx := kong.Parse(&cli,
		kong.Name("texbuild"),
		kong.Description("Compile LaTeX documents: one-shot, on change, or as an HTTP service."),
		kong.UsageOnError(),
		kong.Vars{"version": version.Version},
	)

	if err := ctx.Run(&commands.Global{}, &cli); err != nil {
		slog.Error("Command failed", logfields.Error(err))
		os.Exit(texerrors.ExitCodeFor(err))
	}
}
