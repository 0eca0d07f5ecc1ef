// Package app wires every kaiwa subsystem into a running voice pipeline.
//
// The App owns the full lifecycle: New builds and connects all subsystems,
// Run executes the pipeline until the context ends, and Shutdown releases
// whatever is still held in order.
//
// Providers are built by main.go through the config registry and handed in
// through [Providers]; tests inject mocks there.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/kaiwa/internal/config"
	"github.com/MrWong99/kaiwa/internal/dialogue"
	"github.com/MrWong99/kaiwa/internal/duplex"
	"github.com/MrWong99/kaiwa/internal/health"
	"github.com/MrWong99/kaiwa/internal/observe"
	"github.com/MrWong99/kaiwa/internal/pipeline"
	"github.com/MrWong99/kaiwa/internal/resilience"
	"github.com/MrWong99/kaiwa/internal/segmenter"
	"github.com/MrWong99/kaiwa/internal/synthesis"
	"github.com/MrWong99/kaiwa/internal/transcript"
	"github.com/MrWong99/kaiwa/pkg/audio"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/provider/llm"
	"github.com/MrWong99/kaiwa/pkg/provider/stt"
	"github.com/MrWong99/kaiwa/pkg/provider/tts"
	"github.com/MrWong99/kaiwa/pkg/provider/vad"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// Providers holds one value per provider slot. Every slot is required.
type Providers struct {
	STT     stt.Transcriber
	LLM     llm.Provider
	TTS     tts.Provider
	VAD     vad.Engine
	Capture audio.CaptureDevice
	Player  audio.Player
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	log            *slog.Logger
	levelVar       *slog.LevelVar
	metrics        *observe.Metrics
	metricsHandler http.Handler
	configPath     string
	watchInterval  time.Duration

	// Subsystems, initialised in New.
	styles     []types.VoiceStyle
	capture    *duplex.Controller
	dialogue   *dialogue.Engine
	synth      *synthesis.Worker
	vadSession vad.SessionHandle
	orch       *pipeline.Orchestrator
	diag       *health.Server
	watcher    *config.Watcher

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithLogger sets the logger passed to every subsystem. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithLevelVar lets a reloaded config change the process log level.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.levelVar = v }
}

// WithMetrics sets the pipeline instruments and the handler served on
// /metrics. A nil handler leaves /metrics unmounted.
func WithMetrics(m *observe.Metrics, handler http.Handler) Option {
	return func(a *App) {
		a.metrics = m
		a.metricsHandler = handler
	}
}

// WithConfigWatch polls path for changes and applies live-tunable settings
// while running. interval <= 0 uses the watcher default.
func WithConfigWatch(path string, interval time.Duration) Option {
	return func(a *App) {
		a.configPath = path
		a.watchInterval = interval
	}
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. It fetches the voice
// styles from the synthesis service, so it blocks on one network round trip
// for remote engines.
//
// On error New releases what it created itself (the VAD session); the
// providers stay owned by the caller.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (_ *App, err error) {
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if err := checkProviders(providers); err != nil {
		return nil, err
	}

	transcriber, synthesizer := a.guardProviders()
	if c := transcript.New(cfg.Transcript.Replacements, cfg.Transcript.Suppress); c.Enabled() {
		transcriber = transcript.Wrap(transcriber, c, a.log)
	}

	// ── 1. Voice styles ─────────────────────────────────────────────────
	styles, err := synthesizer.Styles(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: load voice styles: %w", err)
	}
	if len(styles) == 0 {
		return nil, errdefs.Configuration("app", errors.New("synthesis service offers no voice styles"))
	}
	a.styles = styles

	// ── 2. Dialogue ─────────────────────────────────────────────────────
	if err := a.initDialogue(); err != nil {
		return nil, fmt.Errorf("app: init dialogue: %w", err)
	}

	// ── 3. Synthesis ────────────────────────────────────────────────────
	a.synth, err = synthesis.New(synthesizer, styles, synthesis.WithLogger(a.log))
	if err != nil {
		return nil, fmt.Errorf("app: init synthesis: %w", err)
	}

	// ── 4. Duplex ───────────────────────────────────────────────────────
	a.capture = duplex.NewController(providers.Capture,
		duplex.WithLogger(a.log),
		duplex.WithPauseObserver(a.metrics.RecordCapturePaused),
	)
	a.closers = append(a.closers, a.capture.Close)
	gate := duplex.NewGate(a.capture, providers.Player,
		duplex.WithTrailingSilence(cfg.Audio.TrailingSilence),
		duplex.WithGateLogger(a.log),
	)
	a.closers = append(a.closers, providers.Player.Close)

	// ── 5. Voice activity detection ─────────────────────────────────────
	aggr := config.DefaultAggressiveness
	if cfg.VAD.Aggressiveness != nil {
		aggr = *cfg.VAD.Aggressiveness
	}
	a.vadSession, err = providers.VAD.NewSession(vad.Config{
		SampleRate:     cfg.Audio.SampleRate,
		FrameSizeMs:    cfg.Audio.FrameMs,
		Aggressiveness: aggr,
	})
	if err != nil {
		return nil, errdefs.Configuration("vad session", err)
	}
	a.closers = append(a.closers, a.vadSession.Close)
	defer func() {
		if err == nil {
			return
		}
		if cerr := a.vadSession.Close(); cerr != nil {
			a.log.Warn("failed to close vad session", "err", cerr)
		}
	}()

	// ── 6. Pipeline ─────────────────────────────────────────────────────
	a.orch, err = pipeline.New(pipeline.Deps{
		Capture:     a.capture,
		VAD:         a.vadSession,
		Transcriber: transcriber,
		Dialogue:    a.dialogue,
		Synthesizer: a.synth,
		Player:      gate,
		ProviderNames: map[string]string{
			pipeline.StageTranscribe: cfg.Providers.STT.Name,
			pipeline.StageDialogue:   cfg.Providers.LLM.Name,
			pipeline.StageSynthesize: cfg.Providers.TTS.Name,
			pipeline.StagePlayback:   cfg.Audio.Playback,
		},
		Metrics: a.metrics,
		Logger:  a.log,
	}, pipeline.Config{
		Segmenter: segmenter.Config{
			FrameBytes:       cfg.Audio.FrameSamples() * 2,
			SampleRate:       cfg.Audio.SampleRate,
			SilenceThreshold: cfg.VAD.SilenceThreshold,
			MinFrames:        cfg.VAD.MinFramesThreshold,
			MaxFrames:        cfg.VAD.MaxFrames,
		},
		EmptyTranscripts: pipeline.EmptyTranscriptPolicy(cfg.Dialogue.EmptyTranscripts),
		NoiseLogLevel:    cfg.VAD.NoiseLogLevel.Level(),
	})
	if err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 7. Diagnostics ──────────────────────────────────────────────────
	if addr := cfg.Server.DiagnosticsAddr; addr != "" {
		checks := health.New(
			health.CaptureRunning(a.capture.Running, a.capture.Paused),
			health.StylesLoaded(func() int { return len(a.synth.Styles()) }),
		)
		a.diag = health.NewServer(addr, checks,
			health.WithMetricsHandler(a.metricsHandler),
			health.WithInstrumentation(a.metrics),
			health.WithServerLogger(a.log),
		)
	}

	// ── 8. Config watcher ───────────────────────────────────────────────
	if a.configPath != "" {
		wopts := []config.WatcherOption{config.WithWatcherLogger(a.log)}
		if a.watchInterval > 0 {
			wopts = append(wopts, config.WithInterval(a.watchInterval))
		}
		a.watcher, err = config.NewWatcher(a.configPath, a.onConfigChange, wopts...)
		if err != nil {
			return nil, fmt.Errorf("app: init config watcher: %w", err)
		}
	}

	if c, ok := providers.STT.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	return a, nil
}

func checkProviders(p *Providers) error {
	if p == nil {
		return errdefs.Configuration("app", errors.New("providers are required"))
	}
	var missing []error
	for name, ok := range map[string]bool{
		"stt":      p.STT != nil,
		"llm":      p.LLM != nil,
		"tts":      p.TTS != nil,
		"vad":      p.VAD != nil,
		"capture":  p.Capture != nil,
		"playback": p.Player != nil,
	} {
		if !ok {
			missing = append(missing, fmt.Errorf("%s provider is not configured", name))
		}
	}
	if len(missing) > 0 {
		return errdefs.Configuration("app", errors.Join(missing...))
	}
	return nil
}

// guardProviders wraps the remote recognition and synthesis calls in
// circuit breakers unless resilience is disabled.
func (a *App) guardProviders() (stt.Transcriber, tts.Provider) {
	if a.cfg.Resilience.Disabled {
		return a.providers.STT, a.providers.TTS
	}
	breaker := func(name string) *resilience.CircuitBreaker {
		return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         name,
			MaxFailures:  a.cfg.Resilience.MaxFailures,
			ResetTimeout: a.cfg.Resilience.ResetTimeout,
			Logger:       a.log,
		})
	}
	return resilience.GuardTranscriber(a.providers.STT, breaker("stt/"+a.cfg.Providers.STT.Name)),
		resilience.GuardSynthesizer(a.providers.TTS, breaker("tts/"+a.cfg.Providers.TTS.Name))
}

// initDialogue renders the system prompt and builds the dialogue engine.
func (a *App) initDialogue() error {
	dc := a.cfg.Dialogue
	tmpl, err := dc.SystemPromptTemplate()
	if err != nil {
		return err
	}

	opts := []dialogue.Option{
		dialogue.WithTemperature(dc.Temperature),
		dialogue.WithMaxTokens(dc.MaxTokens),
		dialogue.WithLogger(a.log),
	}
	if tmpl != "" {
		tones := make([]string, len(a.styles))
		for i, s := range a.styles {
			tones[i] = s.Name
		}
		prompt, err := config.RenderPrompt(tmpl, config.PromptData{Persona: a.cfg.Persona, ToneList: tones})
		if err != nil {
			return err
		}
		opts = append(opts, dialogue.WithSystemPrompt(prompt))
	}
	if dc.SchemaPath != "" {
		schema, err := dialogue.LoadSchema(dc.SchemaPath)
		if err != nil {
			return err
		}
		opts = append(opts, dialogue.WithSchema(schema))
	}

	a.dialogue, err = dialogue.New(a.providers.LLM, a.styles, opts...)
	return err
}

// onConfigChange applies live-tunable settings from a reloaded config file.
func (a *App) onConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(d.NewLogLevel.Level())
		a.log.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VADChanged {
		t := segmenter.Thresholds{
			SilenceThreshold: d.NewVAD.SilenceThreshold,
			MinFrames:        d.NewVAD.MinFramesThreshold,
			MaxFrames:        d.NewVAD.MaxFrames,
		}
		if err := a.orch.Segmenter().Tune(t); err != nil {
			a.log.Warn("rejected segmentation thresholds", "err", err)
		} else {
			a.log.Info("segmentation thresholds updated",
				"silence_threshold", t.SilenceThreshold,
				"min_frames", t.MinFrames,
				"max_frames", t.MaxFrames,
			)
		}
		a.orch.SetNoiseLogLevel(d.NewVAD.NoiseLogLevel.Level())
	}
	if len(d.RestartRequired) > 0 {
		a.log.Warn("config changes require restart", "sections", d.RestartRequired)
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Styles returns the voice styles loaded at startup.
func (a *App) Styles() []types.VoiceStyle {
	out := make([]types.VoiceStyle, len(a.styles))
	copy(out, a.styles)
	return out
}

// Dialogue returns the dialogue engine.
func (a *App) Dialogue() *dialogue.Engine { return a.dialogue }

// Pipeline returns the orchestrator.
func (a *App) Pipeline() *pipeline.Orchestrator { return a.orch }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the pipeline plus the optional diagnostics listener and config
// watcher, and blocks until ctx is cancelled or one of them fails. A
// cancelled ctx is a normal stop and yields nil.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("pipeline starting",
		"stt", a.cfg.Providers.STT.Name,
		"llm", a.cfg.Providers.LLM.Name,
		"tts", a.cfg.Providers.TTS.Name,
		"styles", len(a.styles),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.orch.Run(gctx) })
	if a.diag != nil {
		g.Go(func() error { return a.diag.Run(gctx) })
	}
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases all subsystems in init order. If ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}
		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
