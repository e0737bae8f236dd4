package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// Console runs a Shell on a readline terminal.
type Console struct {
	shell *Shell
	rl    *readline.Instance
}

// New creates a console around shell. The shell's output is moved to the
// terminal.
func New(shell *Shell) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "sense> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(shell),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	shell.SetOutput(rl.Stdout())
	return &Console{shell: shell, rl: rl}, nil
}

// completer offers the console commands and, after call or meta, the
// registered command names.
func completer(shell *Shell) readline.AutoCompleter {
	names := func(string) []string { return shell.target.Commands() }
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("commands"),
		readline.PcItem("meta", readline.PcItemDynamic(names)),
		readline.PcItem("call", readline.PcItemDynamic(names)),
		readline.PcItem("wait"),
		readline.PcItem("try"),
		readline.PcItem("pending"),
		readline.PcItem("frame"),
		readline.PcItem("log"),
		readline.PcItem("status"),
		readline.PcItem("quit"),
	)
}

// Stdout returns a writer that properly coordinates with the readline input.
// Use this for log output to avoid interfering with the command prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (c *Console) Stderr() io.Writer {
	return c.rl.Stderr()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.shell.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		if !c.shell.Exec(strings.TrimSpace(line)) {
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}
	}
}
