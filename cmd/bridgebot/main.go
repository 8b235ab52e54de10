package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/lindenapp/bridgebot/internal/channels"
	"github.com/lindenapp/bridgebot/internal/config"
	"github.com/lindenapp/bridgebot/internal/llm"
	. "github.com/lindenapp/bridgebot/internal/logging"
)

const version = "0.1.0"

// CLI defines the command-line interface
type CLI struct {
	Config string `help:"Path to configuration file." default:"bridgebot.json" short:"c"`
	Debug  bool   `help:"Enable debug logging." short:"d"`

	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Run the bot gateway (default)."`
	Init    InitCmd    `cmd:"" help:"Write a default configuration file."`
	Version VersionCmd `cmd:"" help:"Print the version and exit."`
}

type ServeCmd struct{}

// Run starts all enabled channel adapters and blocks until a signal
func (s *ServeCmd) Run(cli *CLI) error {
	level := LevelInfo
	if cli.Debug {
		level = LevelDebug
	}
	Init(&Config{Level: level, ShowCaller: cli.Debug})

	L_info("bridgebot %s starting", version)

	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if !cli.Debug {
		SetLevel(levelFromName(cfg.LogLevel))
	}

	provider, err := llm.New(cfg.Bot.Provider)
	if err != nil {
		return fmt.Errorf("failed to create llm provider: %w", err)
	}
	L_info("llm provider ready", "provider", provider.Name(), "model", cfg.Bot.Provider.Model)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := channels.NewManager(provider, cfg.Bot, cfg.HistoryLimit)
	if err := manager.StartAll(ctx, cfg.Channels); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	L_info("shutting down", "signal", received.String())

	cancel()
	manager.StopAll()

	L_info("bridgebot stopped")
	return nil
}

type InitCmd struct {
	Force bool `help:"Overwrite an existing configuration file."`
}

// Run writes a default configuration file for editing
func (i *InitCmd) Run(cli *CLI) error {
	Init(nil)

	if _, err := os.Stat(cli.Config); err == nil && !i.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cli.Config)
	}

	if err := config.AtomicWriteJSON(cli.Config, config.Default(), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("wrote %s\n", cli.Config)
	return nil
}

type VersionCmd struct{}

func (v *VersionCmd) Run(cli *CLI) error {
	fmt.Printf("bridgebot %s\n", version)
	return nil
}

func levelFromName(name string) int {
	switch name {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func main() {
	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("bridgebot"),
		kong.Description("Multi-platform chat bot gateway."),
		kong.UsageOnError(),
	)
	if err := kctx.Run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "bridgebot: %v\n", err)
		os.Exit(1)
	}
}
