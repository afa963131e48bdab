// Command coherence-console feeds hand-typed samples through a local engine.
//
// Each input line is "re [im]". A lone value is run through the chosen
// encoder; two values are taken as an explicit phase. Timestamps advance by
// -dt per line.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"golang.org/x/term"

	"github.com/mrhavens/becomingone/node/internal/config"
	"github.com/mrhavens/becomingone/node/internal/engine"
	"github.com/mrhavens/becomingone/node/internal/source"
)

func main() {
	configPath := flag.String("config", "", "optional node config file; its engine block is used")
	preset := flag.String("preset", "", "engine preset: "+strings.Join(config.Presets(), " | "))
	dt := flag.Float64("dt", 0.01, "seconds between consecutive samples")
	encoder := flag.String("encoder", "identity", "encoder for single-value lines: "+strings.Join(source.EncoderNames(), " | "))
	history := flag.String("history", "", "readline history file")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	cfg := config.DefaultEngine()
	if *configPath != "" {
		full, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = full.Node.Engine
	}
	if *preset != "" {
		if err := config.ApplyPreset(&cfg, *preset); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	enc, err := source.LookupEncoder(*encoder)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	eng, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer eng.Close()

	c := newConsole(eng, enc, *dt, os.Stdout)

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		if err := runPiped(c, os.Stdin); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}
	if err := runInteractive(c, *history); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runInteractive(c *console, history string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36mcoherence>\033[0m ",
		HistoryFile:     history,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("/state"),
			readline.PcItem("/witness"),
			readline.PcItem("/recall"),
			readline.PcItem("/help"),
			readline.PcItem("/quit"),
		),
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintln(c.out, "Enter samples as \"re [im]\". Commands: /state, /witness [n], /recall, /help, /quit")
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := c.handle(line); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
}

// runPiped processes r line by line without prompts, for scripted use.
func runPiped(c *console, r io.Reader) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := c.handle(sc.Text()); err != nil {
			if err == errQuit {
				return nil
			}
			fmt.Fprintf(c.out, "error: %v\n", err)
		}
	}
	return sc.Err()
}
