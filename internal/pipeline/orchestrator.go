// Package pipeline wires the voice pipeline stages together.
//
// Frames from the capture device are segmented inline on the capture thread.
// Finished utterances then travel through four mailboxes, each drained by a
// single worker goroutine:
//
//	capture → segmenter → [utterances] → transcribe → [transcripts] →
//	dialogue → [replies] → synthesize → [clips] → playback
//
// One worker per stage keeps replies in the order the user spoke. Workers
// share nothing but the queues.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/kaiwa/internal/dialogue"
	"github.com/MrWong99/kaiwa/internal/duplex"
	"github.com/MrWong99/kaiwa/internal/observe"
	"github.com/MrWong99/kaiwa/internal/segmenter"
	"github.com/MrWong99/kaiwa/pkg/audio"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/provider/vad"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// Stage names used for logs, metrics and provider error labels.
const (
	StageTranscribe = "transcribe"
	StageDialogue   = "dialogue"
	StageSynthesize = "synthesize"
	StagePlayback   = "playback"
)

// EmptyTranscriptPolicy decides what happens to transcripts that are empty
// after trimming whitespace.
type EmptyTranscriptPolicy string

const (
	// DropEmpty discards empty transcripts at the transcription stage with a
	// warning and a dropped-item count.
	DropEmpty EmptyTranscriptPolicy = "drop"

	// ForwardEmpty passes empty transcripts on to the dialogue engine.
	ForwardEmpty EmptyTranscriptPolicy = "forward"
)

// Capture is the lifecycle surface of the capture stream.
type Capture interface {
	OnFrame(h audio.FrameHandler)
	Start() error
	Close() error
}

// Transcriber turns one utterance into text.
type Transcriber interface {
	Transcribe(ctx context.Context, seg types.SpeechSegment) (string, error)
}

// Responder produces the structured reply to one transcript.
type Responder interface {
	Submit(ctx context.Context, text string) (types.DialogueReply, error)
}

// Synthesizer turns a reply into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, reply types.DialogueReply) (types.SynthesizedAudio, error)
}

// Player renders audio with capture muted.
type Player interface {
	Play(ctx context.Context, clip types.SynthesizedAudio) error
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Capture     Capture
	VAD         vad.SessionHandle
	Transcriber Transcriber
	Dialogue    Responder
	Synthesizer Synthesizer
	Player      Player

	// ProviderNames labels provider error metrics per stage. Missing entries
	// fall back to the stage name.
	ProviderNames map[string]string

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Config holds orchestrator behaviour.
type Config struct {
	Segmenter segmenter.Config

	// EmptyTranscripts defaults to DropEmpty.
	EmptyTranscripts EmptyTranscriptPolicy

	// NoiseLogLevel, if set, logs every discarded noise burst at this level.
	// Nil disables the log line; the noise metric is always recorded.
	NoiseLogLevel *slog.Level
}

// Orchestrator owns the queues, the stage workers and the capture lifecycle.
type Orchestrator struct {
	deps Deps
	cfg  Config
	log  *slog.Logger
	seg  *segmenter.Segmenter

	utterances  *Queue[types.SpeechSegment]
	transcripts *Queue[string]
	replies     *Queue[types.DialogueReply]
	clips       *Queue[types.SynthesizedAudio]

	noiseLevel atomic.Pointer[slog.Level]

	halted    atomic.Bool
	frameErrs atomic.Int64
	fatal     chan error

	runOnce sync.Once
}

// New validates deps and builds the segmenter and queues. Nothing runs until
// Run is called.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	var missing []string
	if deps.Capture == nil {
		missing = append(missing, "capture")
	}
	if deps.VAD == nil {
		missing = append(missing, "vad")
	}
	if deps.Transcriber == nil {
		missing = append(missing, "transcriber")
	}
	if deps.Dialogue == nil {
		missing = append(missing, "dialogue")
	}
	if deps.Synthesizer == nil {
		missing = append(missing, "synthesizer")
	}
	if deps.Player == nil {
		missing = append(missing, "player")
	}
	if len(missing) > 0 {
		return nil, errdefs.Configuration("pipeline", fmt.Errorf("missing dependencies: %s", strings.Join(missing, ", ")))
	}
	switch cfg.EmptyTranscripts {
	case "":
		cfg.EmptyTranscripts = DropEmpty
	case DropEmpty, ForwardEmpty:
	default:
		return nil, errdefs.Configuration("pipeline", fmt.Errorf("unknown empty transcript policy %q", cfg.EmptyTranscripts))
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	o := &Orchestrator{
		deps:        deps,
		cfg:         cfg,
		log:         deps.Logger,
		utterances:  NewQueue[types.SpeechSegment](WithDepthObserver(deps.Metrics.QueueObserver("utterances"))),
		transcripts: NewQueue[string](WithDepthObserver(deps.Metrics.QueueObserver("transcripts"))),
		replies:     NewQueue[types.DialogueReply](WithDepthObserver(deps.Metrics.QueueObserver("replies"))),
		clips:       NewQueue[types.SynthesizedAudio](WithDepthObserver(deps.Metrics.QueueObserver("clips"))),
		fatal:       make(chan error, 1),
	}

	seg, err := segmenter.New(deps.VAD, cfg.Segmenter, o.emitSegment, segmenter.WithNoiseHandler(o.noise))
	if err != nil {
		return nil, err
	}
	o.seg = seg
	o.noiseLevel.Store(cfg.NoiseLogLevel)
	deps.Capture.OnFrame(o.handleFrame)
	return o, nil
}

// Segmenter exposes the segmenter so thresholds can be tuned while running.
func (o *Orchestrator) Segmenter() *segmenter.Segmenter { return o.seg }

// SetNoiseLogLevel changes the level discarded noise bursts are logged at.
// Nil disables the log line. Safe to call while running.
func (o *Orchestrator) SetNoiseLogLevel(lvl *slog.Level) { o.noiseLevel.Store(lvl) }

// Run starts every stage worker, then enables capture, and blocks until ctx
// is cancelled or a fatal error occurs. On return in-flight work has been
// abandoned, queued items discarded and the capture device released.
//
// A cancelled ctx is a normal shutdown and yields nil. Run may be called
// only once.
func (o *Orchestrator) Run(ctx context.Context) error {
	err := errors.New("pipeline: Run called twice")
	o.runOnce.Do(func() { err = o.run(ctx) })
	return err
}

func (o *Orchestrator) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runStage(gctx, o.utterances, o.transcripts, o.transcribe) })
	g.Go(func() error { return runStage(gctx, o.transcripts, o.replies, o.respond) })
	g.Go(func() error { return runStage(gctx, o.replies, o.clips, o.synthesize) })
	g.Go(func() error { return runStage[types.SynthesizedAudio, struct{}](gctx, o.clips, nil, o.play) })

	var runErr error
	if err := o.deps.Capture.Start(); err != nil {
		runErr = errdefs.Device("start capture", err)
		o.halted.Store(true)
		g.Go(func() error { return runErr })
	} else {
		o.log.Info("pipeline running, listening for speech")
	}

	select {
	case <-gctx.Done():
	case err := <-o.fatal:
		g.Go(func() error { return err })
	}
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}

	o.shutdown()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// shutdown closes every queue, discards what is left and releases capture.
func (o *Orchestrator) shutdown() {
	o.halted.Store(true)
	dropped := 0
	for _, q := range []interface {
		Close()
		Discard() int
	}{o.utterances, o.transcripts, o.replies, o.clips} {
		q.Close()
		dropped += q.Discard()
	}
	if err := o.deps.Capture.Close(); err != nil {
		o.log.Warn("failed to release capture device", "err", err)
	}
	o.log.Info("pipeline stopped", "discarded_items", dropped)
}

// handleFrame runs on the capture thread. It must never block.
func (o *Orchestrator) handleFrame(f types.AudioFrame) {
	if o.halted.Load() {
		return
	}
	err := o.seg.Process(f)
	if err == nil {
		return
	}
	if errors.Is(err, errdefs.ErrConfiguration) {
		if o.halted.CompareAndSwap(false, true) {
			o.log.Error("capture frame rejected, stopping pipeline", "err", err)
			select {
			case o.fatal <- err:
			default:
			}
		}
		return
	}
	if n := o.frameErrs.Add(1); n == 1 || n%1000 == 0 {
		o.log.Warn("voice activity detection failed", "err", err, "failures", n)
	}
}

func (o *Orchestrator) emitSegment(seg types.SpeechSegment) {
	o.deps.Metrics.RecordSegment(context.Background(), observe.SegmentEmitted)
	o.log.Debug("utterance detected", "frames", seg.Frames, "duration", seg.Duration())
	if !o.utterances.Put(seg) {
		o.deps.Metrics.RecordDrop(context.Background(), StageTranscribe)
	}
}

func (o *Orchestrator) noise(frames int) {
	o.deps.Metrics.RecordSegment(context.Background(), observe.SegmentNoise)
	if lvl := o.noiseLevel.Load(); lvl != nil {
		o.log.Log(context.Background(), *lvl, "discarded noise burst", "frames", frames)
	}
}

func (o *Orchestrator) transcribe(ctx context.Context, seg types.SpeechSegment) (string, error) {
	ctx, st := observe.StartStage(ctx, o.deps.Metrics, o.log, StageTranscribe)
	text, err := o.deps.Transcriber.Transcribe(ctx, seg)
	if err != nil {
		return "", o.fail(ctx, st, StageTranscribe, err)
	}
	text = strings.TrimSpace(text)
	if text == "" && o.cfg.EmptyTranscripts == DropEmpty {
		st.Drop("empty transcript", slog.Duration("audio", seg.Duration()))
		return "", errDropped
	}
	st.End(nil, slog.String("text", text))
	o.log.Info("user said", "text", text)
	return text, nil
}

func (o *Orchestrator) respond(ctx context.Context, text string) (types.DialogueReply, error) {
	ctx, st := observe.StartStage(ctx, o.deps.Metrics, o.log, StageDialogue)
	reply, err := o.deps.Dialogue.Submit(ctx, text)
	if errors.Is(err, dialogue.ErrNoReply) {
		st.Drop("no reply")
		return types.DialogueReply{}, errDropped
	}
	if err != nil {
		return types.DialogueReply{}, o.fail(ctx, st, StageDialogue, err)
	}
	st.End(nil, slog.String("tone", reply.Tone))
	o.log.Info("assistant replies", "text", reply.Content, "tone", reply.Tone)
	return reply, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, reply types.DialogueReply) (types.SynthesizedAudio, error) {
	ctx, st := observe.StartStage(ctx, o.deps.Metrics, o.log, StageSynthesize)
	clip, err := o.deps.Synthesizer.Synthesize(ctx, reply)
	if err != nil {
		return types.SynthesizedAudio{}, o.fail(ctx, st, StageSynthesize, err)
	}
	st.End(nil, slog.String("style", clip.Style.Name), slog.Int("bytes", len(clip.Data)))
	return clip, nil
}

func (o *Orchestrator) play(ctx context.Context, clip types.SynthesizedAudio) (struct{}, error) {
	ctx, st := observe.StartStage(ctx, o.deps.Metrics, o.log, StagePlayback)
	err := o.deps.Player.Play(ctx, clip)
	if err != nil {
		err = o.fail(ctx, st, StagePlayback, err)
		if errors.Is(err, duplex.ErrCaptureLost) {
			return struct{}{}, errFatal{err: errdefs.Device("playback", err)}
		}
		return struct{}{}, err
	}
	st.End(nil)
	return struct{}{}, nil
}

// fail finishes st for a failed item and records the provider error.
func (o *Orchestrator) fail(ctx context.Context, st *observe.Stage, stage string, err error) error {
	if ctx.Err() != nil {
		st.Abandon()
		return err
	}
	st.End(err)
	name := o.deps.ProviderNames[stage]
	if name == "" {
		name = stage
	}
	o.deps.Metrics.RecordProviderError(ctx, name, errdefs.KindName(err))
	return err
}
