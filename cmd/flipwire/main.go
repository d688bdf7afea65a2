package main

import (
	"github.com/alecthomas/kong"

	"github.com/flipwire/flipwire/internal/cli"
)

func main() {
	var root cli.CLI
	ctx := kong.Parse(&root,
		kong.Name("flipwire"),
		kong.Description("Control a Flipper Zero over Bluetooth LE."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&root))
}
