package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/racaljk/yvm/heap"
	"github.com/racaljk/yvm/image"
	"github.com/racaljk/yvm/manifest"
	"github.com/racaljk/yvm/methodarea"
	"github.com/racaljk/yvm/natives"
	"github.com/racaljk/yvm/vm"
)

const (
	mainName     = "main"
	mainArgsDesc = "([Ljava/lang/String;)V"
	mainDesc     = "()V"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "run a class's entry point",
	ArgsUsage: "[class [method descriptor]]",
	Flags:     []cli.Flag{classpathFlag, threadsFlag, argFlag},
	Action: func(ctx *cli.Context) error {
		m, err := newMachine(ctx)
		if err != nil {
			return err
		}
		return m.run(ctx)
	},
}

var argFlag = &cli.StringSliceFlag{
	Name:  "arg",
	Usage: "program argument passed to main(String[]); may be repeated",
}

var statsCommand = &cli.Command{
	Name:      "stats",
	Usage:     "run a class, then report loaded classes, heap and dispatch statistics",
	ArgsUsage: "[class [method descriptor]]",
	Flags:     []cli.Flag{classpathFlag, threadsFlag, argFlag},
	Action: func(ctx *cli.Context) error {
		m, err := newMachine(ctx)
		if err != nil {
			return err
		}
		runErr := m.run(ctx)
		m.printStats(os.Stdout)
		return runErr
	},
}

// project is the configuration gathered from yvm.toml and flags.
type project struct {
	manifest  *manifest.Manifest // nil without a yvm.toml
	classpath []string
	opts      vm.Options
	threads   int
}

func loadProject(ctx *cli.Context) (*project, error) {
	var (
		mf  *manifest.Manifest
		err error
	)
	if dir := ctx.String(configFlag.Name); dir != "" {
		mf, err = manifest.Load(dir)
	} else {
		mf, err = manifest.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}

	p := &project{manifest: mf, opts: vm.DefaultOptions(), threads: 1}
	p.classpath = append(p.classpath, ctx.StringSlice(classpathFlag.Name)...)
	if mf != nil {
		if p.opts, err = mf.Options(); err != nil {
			return nil, err
		}
		paths, err := mf.FullClasspath()
		if err != nil {
			return nil, err
		}
		p.classpath = append(p.classpath, paths...)
		p.threads = mf.Runtime.Threads
	}
	if n := ctx.Int(threadsFlag.Name); n > 0 {
		p.threads = n
	}
	if len(p.classpath) == 0 {
		p.classpath = []string{"."}
	}
	return p, nil
}

// machine is a VM assembled from a project.
type machine struct {
	project *project
	classes *methodarea.MethodArea
	heap    *heap.Heap
	vm      *vm.VM
}

func newMachine(ctx *cli.Context) (*machine, error) {
	p, err := loadProject(ctx)
	if err != nil {
		return nil, err
	}
	configureLog(ctx, p)

	sources := make([]methodarea.Source, 0, len(p.classpath))
	for _, dir := range p.classpath {
		sources = append(sources, image.NewDir(dir))
	}
	src, err := methodarea.WithBootstrap(sources...)
	if err != nil {
		return nil, err
	}

	m := &machine{
		project: p,
		classes: methodarea.New(src),
		heap:    heap.New(),
	}
	m.vm, err = vm.New(m.classes, m.heap, natives.Default(), p.opts)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// entryPoint picks the class and method to run from the arguments and the
// manifest. Without an explicit method, main(String[]) is preferred over
// main().
func (m *machine) entryPoint(args []string) (class, name, desc string, err error) {
	switch {
	case len(args) > 0:
		class = args[0]
	case m.project.manifest != nil && m.project.manifest.Project.Main != "":
		class = m.project.manifest.Project.Main
	default:
		return "", "", "", errors.New("no class given and no [project] main in yvm.toml")
	}
	class = strings.ReplaceAll(class, ".", "/")

	switch len(args) {
	case 0, 1:
		c, err := m.classes.LoadClass(class)
		if err != nil {
			return "", "", "", err
		}
		if c.FindMethod(mainName, mainArgsDesc) != nil {
			return class, mainName, mainArgsDesc, nil
		}
		return class, mainName, mainDesc, nil
	case 3:
		return class, args[1], args[2], nil
	}
	return "", "", "", fmt.Errorf("expected class, or class method descriptor; got %d arguments", len(args))
}

func (m *machine) run(ctx *cli.Context) error {
	class, name, desc, err := m.entryPoint(ctx.Args().Slice())
	if err != nil {
		return err
	}

	var g errgroup.Group
	results := make([]string, m.project.threads)
	for t := 0; t < m.project.threads; t++ {
		t := t
		g.Go(func() error {
			interp := m.vm.NewInterpreter("thread-" + strconv.Itoa(t))
			var callArgs []vm.Value
			if desc == mainArgsDesc {
				arr, err := m.stringArray(ctx.StringSlice(argFlag.Name))
				if err != nil {
					return err
				}
				callArgs = append(callArgs, arr)
			}
			v, ok, err := interp.Invoke(class, name, desc, callArgs...)
			if err != nil {
				return reportUncaught(interp, err)
			}
			if ok {
				results[t] = v.String()
			}
			return nil
		})
	}
	err = g.Wait()
	for _, r := range results {
		if r != "" {
			fmt.Println(r)
		}
	}
	return err
}

func (m *machine) stringArray(args []string) (vm.Value, error) {
	stringClass, err := m.classes.LoadClass("java/lang/String")
	if err != nil {
		return vm.Null, err
	}
	arr, err := m.heap.NewArray(vm.ElemRef, stringClass, int32(len(args)))
	if err != nil {
		return vm.Null, err
	}
	for k, a := range args {
		s, err := m.vm.NewString(a)
		if err != nil {
			return vm.Null, err
		}
		if err := m.heap.SetArrayItem(arr, int32(k), s); err != nil {
			return vm.Null, err
		}
	}
	return arr, nil
}

// reportUncaught prints a guest exception the way a JVM does and turns it
// into a plain error for the exit status.
func reportUncaught(interp *vm.Interpreter, err error) error {
	var ue *vm.UncaughtException
	if !errors.As(err, &ue) {
		return err
	}
	red := color.New(color.FgRed, color.Bold)
	name := "<unknown>"
	if c := ue.Exception.Class(); c != nil {
		name = strings.ReplaceAll(c.Name, "/", ".")
	}
	head := fmt.Sprintf("Exception in thread %q %s", interp.Name, name)
	if ue.Message != "" {
		head += ": " + ue.Message
	}
	red.Fprintln(os.Stderr, head)
	color.New(color.FgYellow).Fprint(os.Stderr, ue.StackTrace())
	return fmt.Errorf("%s terminated by %s", interp.Name, name)
}

// ---------------------------------------------------------------------------
// Statistics
// ---------------------------------------------------------------------------

func (m *machine) printStats(w io.Writer) {
	classes := tablewriter.NewWriter(w)
	classes.SetHeader([]string{"ID", "Class", "Super", "State", "Methods"})
	classes.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, c := range m.classes.Classes() {
		state, _ := m.classes.State(c.Name)
		classes.Append([]string{
			strconv.Itoa(c.ID), c.Name, c.SuperName, state, strconv.Itoa(len(c.Methods)),
		})
	}
	classes.Render()

	hs := m.heap.Stats()
	hits, misses, size := m.vm.Dispatch().Stats()
	summary := tablewriter.NewWriter(w)
	summary.SetHeader([]string{"Metric", "Value"})
	summary.SetAlignment(tablewriter.ALIGN_LEFT)
	summary.AppendBulk([][]string{
		{"objects", strconv.Itoa(hs.Objects)},
		{"arrays", strconv.Itoa(hs.Arrays)},
		{"array elements", strconv.Itoa(hs.Elements)},
		{"monitors", strconv.Itoa(hs.Monitors)},
		{"dispatch hits", strconv.FormatUint(hits, 10)},
		{"dispatch misses", strconv.FormatUint(misses, 10)},
		{"dispatch entries", strconv.Itoa(size)},
	})
	summary.Render()

	census := tablewriter.NewWriter(w)
	census.SetHeader([]string{"Type", "Allocations"})
	census.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, cc := range m.heap.Census() {
		census.Append([]string{cc.Type, strconv.Itoa(cc.Count)})
	}
	census.Render()
}
