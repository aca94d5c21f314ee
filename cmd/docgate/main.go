package main

import (
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docgate/cmd/docgate/commands"
	"git.home.luguber.info/inful/docgate/internal/version"
)

func main() {
	cli := &commands.CLI{}
	ctx := kong.Parse(cli,
		kong.Name("docgate"),
		kong.Description("Verify a documentation site: checkout, provision, strict build and link check."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	err := ctx.Run(&commands.Global{Stdout: os.Stdout}, cli)
	if code := commands.ExitCode(err, cli.Verbose); code != 0 {
		os.Exit(code)
	}
}
