package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/spf13/pflag"

	"github.com/machinefabric/framepipe-go/fifo"
	"github.com/machinefabric/framepipe-go/frame"
	"github.com/machinefabric/framepipe-go/stream"
)

type writeCommand struct {
	stream string
	offset int64
}

func (c *writeCommand) summary() string {
	return "frame each argument (or all of stdin) as one message and write it"
}

func (c *writeCommand) bind(flags *pflag.FlagSet) {
	flags.StringVarP(&c.stream, "stream", "s", stream.Stdout, "destination stream")
	flags.Int64Var(&c.offset, "offset", stream.NoOffset, "byte offset to write the first message at")
}

func (c *writeCommand) run(ctx context.Context, env *environment, args []string) error {
	messages := make([][]byte, 0, len(args))
	for _, arg := range args {
		messages = append(messages, []byte(arg))
	}
	if len(messages) == 0 {
		data, err := io.ReadAll(env.stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		messages = append(messages, data)
	}

	registry := env.registry()
	defer registry.Close()

	for i, message := range messages {
		var opts []stream.CallOption
		if i == 0 && c.offset >= 0 {
			opts = append(opts, stream.Offset(c.offset))
		}
		if err := registry.Write(ctx, message, c.stream, opts...); err != nil {
			return err
		}
	}
	env.logger.Debug().Int("messages", len(messages)).Str("stream", c.stream).Msg("write complete")
	return registry.Close()
}

type readCommand struct {
	stream      string
	offset      int64
	count       int
	nonblocking bool
	timeout     time.Duration
	framed      bool
}

func (c *readCommand) summary() string {
	return "read messages and print one per line"
}

func (c *readCommand) bind(flags *pflag.FlagSet) {
	flags.StringVarP(&c.stream, "stream", "s", stream.Stdin, "source stream")
	flags.Int64Var(&c.offset, "offset", stream.NoOffset, "byte offset of the first message")
	flags.IntVarP(&c.count, "count", "n", 0, "stop after this many messages (0: until end of stream)")
	flags.BoolVar(&c.nonblocking, "nonblocking", false, "stop instead of waiting when a pipe is empty")
	flags.DurationVar(&c.timeout, "timeout", 0, "give up waiting after this long (0: no limit)")
	flags.BoolVar(&c.framed, "framed", false, "write messages length-prefixed instead of newline separated")
}

func (c *readCommand) run(ctx context.Context, env *environment, args []string) error {
	if len(args) > 0 {
		return usagef("unexpected argument %q", args[0])
	}
	if c.count < 0 {
		return usagef("--count must not be negative")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	registry := env.registry()
	defer registry.Close()

	out := frame.NewWriter(env.stdout)
	for read := 0; c.count == 0 || read < c.count; read++ {
		opts := []stream.CallOption{stream.Blocking(!c.nonblocking)}
		if read == 0 && c.offset >= 0 {
			opts = append(opts, stream.Offset(c.offset))
		}

		result := registry.Read(ctx, c.stream, opts...)
		switch result.Status {
		case stream.StatusEndOfStream:
			env.logger.Debug().Int("messages", read).Msg("end of stream")
			return nil
		case stream.StatusError:
			return result.Err
		}

		if c.framed {
			if err := out.WriteMessage(result.Message); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(env.stdout, "%s\n", result.Message); err != nil {
			return err
		}
	}
	return nil
}

type indexCommand struct {
	format string
}

func (c *indexCommand) summary() string {
	return "list the offset and length of every frame in a file"
}

func (c *indexCommand) bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.format, "format", "json", "output format: json or cbor")
}

func (c *indexCommand) run(_ context.Context, env *environment, args []string) error {
	if len(args) != 1 {
		return usagef("expected exactly one file")
	}
	if c.format != "json" && c.format != "cbor" {
		return usagef("unknown format %q", c.format)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	infos, scanErr := frame.Scan(f, env.cfg.FrameLimits())
	if infos == nil {
		infos = []frame.Info{}
	}

	switch c.format {
	case "cbor":
		data, err := cbor.Marshal(infos)
		if err != nil {
			return fmt.Errorf("encode index: %w", err)
		}
		if _, err := env.stdout.Write(data); err != nil {
			return err
		}
	default:
		enc := json.NewEncoder(env.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(infos); err != nil {
			return fmt.Errorf("encode index: %w", err)
		}
	}

	// The frames before a damaged tail are still printed.
	if scanErr != nil {
		return fmt.Errorf("index %s: %w", args[0], scanErr)
	}
	return nil
}

type mkfifoCommand struct {
	temp string
}

func (c *mkfifoCommand) summary() string {
	return "create named pipes and print their paths"
}

func (c *mkfifoCommand) bind(flags *pflag.FlagSet) {
	flags.StringVar(&c.temp, "temp", "", "directory for a generated pipe name (default: config fifo.dir, then the system temp dir)")
}

func (c *mkfifoCommand) run(_ context.Context, env *environment, args []string) error {
	if len(args) > 0 && c.temp != "" {
		return usagef("--temp cannot be combined with explicit names")
	}

	var created []string
	if len(args) == 0 {
		dir := c.temp
		if dir == "" {
			dir = env.cfg.FIFO.Dir
		}
		name, err := fifo.MakeTemp(dir, env.cfg.FIFO.Prefix)
		if err != nil {
			return err
		}
		created = append(created, name)
	}
	for _, name := range args {
		if err := fifo.Make(name); err != nil {
			return err
		}
		created = append(created, name)
	}

	for _, name := range created {
		env.logger.Debug().Str("path", name).Msg("named pipe created")
		fmt.Fprintln(env.stdout, name)
	}
	return nil
}
