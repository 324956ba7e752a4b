package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/racaljk/yvm/classfile"
	"github.com/racaljk/yvm/image"
)

var asmCommand = &cli.Command{
	Name:      "asm",
	Usage:     "assemble .yasm documents into a .ycls image",
	ArgsUsage: "<in.yasm>...",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output image (default: first input with a .ycls extension)",
		},
	},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() == 0 {
			return cli.ShowSubcommandHelp(ctx)
		}
		var classes []*classfile.Class
		for _, in := range ctx.Args().Slice() {
			cs, err := image.AssembleFile(in)
			if err != nil {
				return err
			}
			classes = append(classes, cs...)
		}

		out := ctx.String("output")
		if out == "" {
			first := ctx.Args().First()
			out = strings.TrimSuffix(first, filepath.Ext(first)) + ".ycls"
		}
		if err := image.WriteFile(out, classes...); err != nil {
			return err
		}
		fmt.Printf("wrote %d classes to %s\n", len(classes), out)
		return nil
	},
}

var disasmCommand = &cli.Command{
	Name:      "disasm",
	Usage:     "print a listing of every class in a .yasm or .ycls file",
	ArgsUsage: "<file>...",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() == 0 {
			return cli.ShowSubcommandHelp(ctx)
		}
		for _, path := range ctx.Args().Slice() {
			classes, err := readClasses(path)
			if err != nil {
				return err
			}
			for _, c := range classes {
				if err := image.Disassemble(os.Stdout, c); err != nil {
					return err
				}
				fmt.Println()
			}
		}
		return nil
	},
}

func readClasses(path string) ([]*classfile.Class, error) {
	switch filepath.Ext(path) {
	case ".yasm":
		return image.AssembleFile(path)
	case ".ycls":
		return image.ReadFile(path)
	}
	return nil, fmt.Errorf("%s: expected a .yasm or .ycls file", path)
}
