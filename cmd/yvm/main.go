// yvm CLI - assembles, inspects and runs yvm classes
package main

import (
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	"github.com/urfave/cli/v2"

	_ "github.com/tliron/commonlog/simple"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "project directory containing yvm.toml (default: search upward from the working directory)",
	}
	verboseFlag = &cli.IntFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "log verbosity (0 warnings, 1 info, 2 debug); overrides [log] verbosity",
		Value:   -1,
	}
	classpathFlag = &cli.StringSliceFlag{
		Name:  "cp",
		Usage: "classpath directory; may be repeated and is searched before the manifest classpath",
	}
	threadsFlag = &cli.IntFlag{
		Name:  "threads",
		Usage: "number of interpreters running the entry point concurrently (default: [runtime] threads)",
	}
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "yvm",
		Usage: "a bytecode interpreter for JVM-style class images",
		Flags: []cli.Flag{configFlag, verboseFlag},
		Before: func(ctx *cli.Context) error {
			// Commands that load a project reconfigure logging from the
			// manifest; this covers the rest.
			configureLog(ctx, nil)
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			statsCommand,
			asmCommand,
			disasmCommand,
		},
	}
}

// configureLog applies the verbosity flag, falling back to the project's
// [log] section.
func configureLog(ctx *cli.Context, p *project) {
	verbosity := ctx.Int(verboseFlag.Name)
	var path *string
	if p != nil && p.manifest != nil {
		if verbosity < 0 {
			verbosity = p.manifest.Log.Verbosity
		}
		if p.manifest.Log.File != "" {
			path = &p.manifest.Log.File
		}
	}
	if verbosity < 0 {
		verbosity = 0
	}
	commonlog.Configure(verbosity, path)
}
