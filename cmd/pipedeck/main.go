package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/waabox/pipedeck/internal/config"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

// exitCode ends the process with a specific status without printing an error.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("pipedeck"),
		kong.Description("Run pipelines of downstream CI jobs and report their outcome."),
		kong.UsageOnError(),
		kong.Vars{
			"version":     "pipedeck " + version,
			"config_path": config.DefaultConfigPath(),
		},
	)

	err := kctx.Run(&cli)
	var code exitCode
	if errors.As(err, &code) {
		os.Exit(int(code))
	}
	kctx.FatalIfErrorf(err)
}
