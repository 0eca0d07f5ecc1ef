// Command kaiwa is a local voice chat loop: it listens on the microphone,
// transcribes each utterance, asks a language model for a reply with a tone,
// and speaks the reply with the matching voice style.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrWong99/kaiwa/internal/app"
	"github.com/MrWong99/kaiwa/internal/config"
	"github.com/MrWong99/kaiwa/internal/observe"
	"github.com/MrWong99/kaiwa/pkg/audio/malgo"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "kaiwa.yaml", "path to the YAML configuration file")
	listDevices := flag.Bool("list-devices", false, "print the available input devices and exit")
	flag.Parse()

	if *listDevices {
		return printDevices()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kaiwa: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kaiwa: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.Level())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("kaiwa starting",
		"config", *configPath,
		"persona", cfg.Persona,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go quitOnEnter(stop)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "kaiwa"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(tel.MeterProvider)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, logger)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithLogger(logger),
		app.WithLevelVar(&level),
		app.WithMetrics(metrics, tel.MetricsHandler),
		app.WithConfigWatch(*configPath, 0),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		closeProviders(providers)
		return 1
	}

	slog.Info("listening, press Enter or Ctrl+C to quit")

	exit := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// quitOnEnter calls stop when a line is read from stdin. End of input is
// not a quit request, so kaiwa keeps running with stdin redirected.
func quitOnEnter(stop func()) {
	sc := bufio.NewScanner(os.Stdin)
	if sc.Scan() {
		stop()
	}
}

func printDevices() int {
	devices, err := malgo.ListInputDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kaiwa: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Println("no input devices found")
		return 0
	}
	for _, d := range devices {
		mark := " "
		if d.IsDefault {
			mark = "*"
		}
		fmt.Printf("%s %3s  %s\n", mark, d.ID, d.Name)
	}
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          kaiwa | startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printRow("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printRow("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printRow("VAD", cfg.VAD.Engine, "")
	printRow("Capture", cfg.Audio.Capture, cfg.Audio.InputDevice)
	printRow("Playback", cfg.Audio.Playback, "")
	if cfg.Persona != "" {
		printRow("Persona", cfg.Persona, "")
	}
	if cfg.Server.DiagnosticsAddr != "" {
		printRow("Diagnostics", cfg.Server.DiagnosticsAddr, "")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(kind, name, detail string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	if r := []rune(value); len(r) > 19 {
		value = string(r[:18]) + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
