// chainfs creates, inspects and mounts chainfs disk images.
//
// A chainfs image holds a root directory of up to a few dozen
// directories, each holding files with 8.3 names whose data lives in
// linked chains of blocks. The mount subcommand serves an image over
// FUSE; the other subcommands work on the image file directly, which
// is handy for preparing images and for scripting.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/keks/chainfs/config"
	"github.com/keks/chainfs/volume"
)

func main() {
	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := a.run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app carries the standard streams so commands can be run from tests.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name    string
	usage   string
	summary string
	run     func(a *app, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"mkfs", "mkfs [--size SIZE] [--block-size N] [--force] IMAGE", "create and format an image", (*app).mkfs},
		{"mount", "mount [--config FILE] [--image IMAGE] [--debug] [--allow-other] [MOUNTPOINT]", "serve an image over FUSE until interrupted", (*app).mount},
		{"info", "info IMAGE", "show geometry and usage", (*app).info},
		{"ls", "ls IMAGE [PATH]", "list the root or a directory", (*app).ls},
		{"mkdir", "mkdir IMAGE PATH", "create a directory", (*app).mkdir},
		{"touch", "touch IMAGE PATH", "create an empty file unless it exists", (*app).touch},
		{"put", "put IMAGE PATH [FILE|-]", "append a local file or stdin to a file", (*app).put},
		{"cat", "cat IMAGE PATH", "write a file to stdout", (*app).cat},
	}
}

func (a *app) run(args []string) error {
	if len(args) == 0 {
		a.printHelp()
		return fmt.Errorf("no command given")
	}

	name := args[0]
	switch name {
	case "help", "-h", "--help":
		a.printHelp()
		return nil
	}

	for _, cmd := range commands {
		if cmd.name == name {
			return cmd.run(a, args[1:])
		}
	}

	return fmt.Errorf("unknown command %q; run 'chainfs help' for a list", name)
}

func (a *app) printHelp() {
	var b strings.Builder
	b.WriteString("chainfs: a two-level filesystem in a single image file\n\nCommands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(&b, "  %-8s %s\n", cmd.name, cmd.summary)
	}
	b.WriteString("\nRun 'chainfs COMMAND --help' for the flags of a command.\n")
	fmt.Fprint(a.stderr, b.String())
}

// parseFlags parses args into fs. It returns errHelpShown if the user
// asked for help, after printing it.
func (a *app) parseFlags(fs *pflag.FlagSet, usage string, args []string) error {
	fs.SetOutput(a.stderr)
	fs.Usage = func() {
		fmt.Fprintf(a.stderr, "Usage: chainfs %s\n\nFlags:\n%s", usage, fs.FlagUsages())
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return errHelpShown
		}
		return err
	}

	return nil
}

var errHelpShown = errors.New("help shown")

// ignoreHelp turns errHelpShown into success.
func ignoreHelp(err error) error {
	if errors.Is(err, errHelpShown) {
		return nil
	}
	return err
}

// imageFlags are shared by every command that opens an existing image.
type imageFlags struct {
	config    string
	blockSize int
}

func (f *imageFlags) add(fs *pflag.FlagSet) {
	fs.StringVar(&f.config, "config", "", "config file (default $"+config.EnvVar+")")
	fs.IntVar(&f.blockSize, "block-size", 0, "block size the image was formatted with (default from config, 512)")
}

// load reads the configuration and applies the flag overrides.
func (f *imageFlags) load() (*config.Config, error) {
	cfg, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	if f.blockSize != 0 {
		cfg.BlockSize = f.blockSize
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openVolume opens image with the configured block size and logger.
func (a *app) openVolume(f *imageFlags, image string) (*volume.Volume, error) {
	cfg, err := f.load()
	if err != nil {
		return nil, err
	}

	logger, err := cfg.Log.NewLogger(a.stderr)
	if err != nil {
		return nil, err
	}

	return volume.OpenFile(image, volume.Options{BlockSize: cfg.BlockSize, Logger: logger})
}

// wantArgs checks the number of positional arguments.
func wantArgs(fs *pflag.FlagSet, min, max int) ([]string, error) {
	args := fs.Args()
	if len(args) < min {
		return nil, fmt.Errorf("%s: missing arguments", fs.Name())
	}
	if len(args) > max {
		return nil, fmt.Errorf("%s: unexpected argument %q", fs.Name(), args[max])
	}
	return args, nil
}
