// framepipe writes, reads and inspects length-prefixed message streams
// from the shell.
//
// Usage:
//
//	framepipe write [-s stream] [--offset n] [message...]
//	framepipe read [-s stream] [--offset n] [-n count] [--nonblocking] [--timeout d] [--framed]
//	framepipe index [--format json|cbor] file
//	framepipe mkfifo [--temp dir] [name...]
//
// Every subcommand also accepts --config (default $FRAMEPIPE_CONFIG) and
// --log-level. Diagnostics go to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/machinefabric/framepipe-go/internal/config"
	"github.com/machinefabric/framepipe-go/internal/logging"
	"github.com/machinefabric/framepipe-go/stream"
)

// exit codes
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// command is one framepipe subcommand
type command interface {
	summary() string
	bind(flags *pflag.FlagSet)
	run(ctx context.Context, env *environment, args []string) error
}

var commands = map[string]func() command{
	"write":  func() command { return &writeCommand{} },
	"read":   func() command { return &readCommand{} },
	"index":  func() command { return &indexCommand{} },
	"mkfifo": func() command { return &mkfifoCommand{} },
}

// environment is what a subcommand runs against
type environment struct {
	cfg    config.Config
	logger zerolog.Logger
	stdin  io.Reader
	stdout io.Writer
}

func (e *environment) registry() *stream.Registry {
	return stream.NewRegistry(
		stream.WithLogger(e.logger),
		stream.WithStdio(e.stdin, e.stdout),
		stream.WithLimits(e.cfg.FrameLimits()),
	)
}

// usageError is reported with exit code 2
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stderr)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}

	name := args[0]
	factory, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "framepipe: unknown command %q\n\n", name)
		printUsage(stderr)
		return exitUsage
	}
	cmd := factory()

	var configPath, logLevel string
	flags := pflag.NewFlagSet("framepipe "+name, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&configPath, "config", "", "path to TOML config (default $"+config.EnvConfig+")")
	flags.StringVar(&logLevel, "log-level", "", "trace, debug, info, warn, error or disabled")
	cmd.bind(flags)

	if err := flags.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "framepipe: %v\n", err)
		return exitError
	}

	logCfg := cfg.Logging()
	if logLevel != "" {
		lvl, ok := logging.ParseLevel(logLevel)
		if !ok {
			fmt.Fprintf(stderr, "framepipe: invalid --log-level %q\n", logLevel)
			return exitUsage
		}
		logCfg.Level = lvl
	}
	env := &environment{
		cfg:    cfg,
		logger: logging.Build(logCfg, stderr, "framepipe").With().Str("command", name).Logger(),
		stdin:  stdin,
		stdout: stdout,
	}

	if err := cmd.run(ctx, env, flags.Args()); err != nil {
		var uerr *usageError
		if errors.As(err, &uerr) {
			fmt.Fprintf(stderr, "framepipe %s: %v\n", name, err)
			return exitUsage
		}
		env.logger.Error().Err(err).Msg("command failed")
		return exitError
	}
	return exitOK
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: framepipe <command> [flags]\n\nCommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-8s %s\n", name, commands[name]().summary())
	}
	fmt.Fprintf(w, "\nRun 'framepipe <command> --help' for the flags of a command.\n")
}
