package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/kaiwa/internal/dialogue"
	"github.com/MrWong99/kaiwa/internal/duplex"
	"github.com/MrWong99/kaiwa/internal/pipeline"
	"github.com/MrWong99/kaiwa/internal/segmenter"
	"github.com/MrWong99/kaiwa/pkg/audio"
	audiomock "github.com/MrWong99/kaiwa/pkg/audio/mock"
	"github.com/MrWong99/kaiwa/pkg/audio/wav"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
	sttmock "github.com/MrWong99/kaiwa/pkg/provider/stt/mock"
	vadmock "github.com/MrWong99/kaiwa/pkg/provider/vad/mock"
	"github.com/MrWong99/kaiwa/pkg/types"
)

const frameBytes = 960

type fakeTranscriber struct {
	mu    sync.Mutex
	calls int
	texts []string
	errAt map[int]error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, seg types.SpeechSegment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errAt[f.calls]; err != nil {
		return "", err
	}
	if len(f.texts) > 0 {
		t := f.texts[0]
		f.texts = f.texts[1:]
		return t, nil
	}
	return fmt.Sprintf("utterance %d (%d frames)", f.calls, seg.Frames), nil
}

type fakeDialogue struct {
	mu   sync.Mutex
	seen []string
	err  error
}

func (f *fakeDialogue) Submit(_ context.Context, text string) (types.DialogueReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, text)
	if f.err != nil {
		return types.DialogueReply{}, f.err
	}
	return types.DialogueReply{Content: "reply to " + text, Tone: "普通"}, nil
}

func (f *fakeDialogue) Seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

type fakeSynth struct{}

func (fakeSynth) Synthesize(_ context.Context, r types.DialogueReply) (types.SynthesizedAudio, error) {
	return types.SynthesizedAudio{
		Data:  wav.Encode(make([]byte, 480), 24000, 1),
		Text:  r.Content,
		Style: types.VoiceStyle{ID: 2, Name: r.Tone},
	}, nil
}

// recordingPlayer records the text of every clip it plays. With a gate it
// plays through it; without one capture is never paused, so tests can speak
// while earlier replies are still in flight.
type recordingPlayer struct {
	gate *duplex.Gate
	mu   sync.Mutex
	text []string
}

func (p *recordingPlayer) Play(ctx context.Context, clip types.SynthesizedAudio) error {
	if p.gate != nil {
		if err := p.gate.Play(ctx, clip); err != nil {
			return err
		}
	}
	p.mu.Lock()
	p.text = append(p.text, clip.Text)
	p.mu.Unlock()
	return nil
}

func (p *recordingPlayer) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.text...)
}

type harness struct {
	dev      *audiomock.CaptureDevice
	ctrl     *duplex.Controller
	speaker  *audiomock.Player
	player   *recordingPlayer
	orch     *pipeline.Orchestrator
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
	dialogue *fakeDialogue
}

func newHarness(t *testing.T, tr pipeline.Transcriber, dlg *fakeDialogue, cfg pipeline.Config, gated bool) *harness {
	t.Helper()
	dev := &audiomock.CaptureDevice{}
	ctrl := duplex.NewController(dev)
	speaker := &audiomock.Player{}
	player := &recordingPlayer{}
	if gated {
		player.gate = duplex.NewGate(ctrl, speaker, duplex.WithTrailingSilence(0))
	}
	if cfg.Segmenter.FrameBytes == 0 {
		cfg.Segmenter = segmenter.Config{FrameBytes: frameBytes, SampleRate: 16000}
	}

	orch, err := pipeline.New(pipeline.Deps{
		Capture:     ctrl,
		VAD:         &vadmock.Session{},
		Transcriber: tr,
		Dialogue:    dlg,
		Synthesizer: fakeSynth{},
		Player:      player,
		Logger:      slog.New(slog.DiscardHandler),
	}, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{dev: dev, ctrl: ctrl, speaker: speaker, player: player, orch: orch, cancel: cancel, done: make(chan struct{}), dialogue: dlg}
	go func() {
		h.err = orch.Run(ctx)
		close(h.done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
		}
	})
	waitFor(t, "capture started", dev.Running)
	return h
}

// speak pushes one utterance followed by enough silence to end it. Frames
// pushed while capture is paused are lost, so speak waits for capture to be
// live before every frame.
func (h *harness) speak(t *testing.T, speech int) {
	t.Helper()
	push := func(frame []byte) {
		waitFor(t, "capture live", h.dev.Running)
		h.dev.Push(frame)
	}
	for range speech {
		push(vadmock.SpeechFrame(frameBytes))
	}
	for range 25 {
		push(vadmock.SilenceFrame(frameBytes))
	}
}

func (h *harness) stop(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case <-h.done:
		return h.err
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	tr := &fakeTranscriber{texts: []string{"こんにちは"}}
	h := newHarness(t, tr, &fakeDialogue{}, pipeline.Config{}, true)

	h.speak(t, 30)
	waitFor(t, "playback", func() bool { return len(h.player.Played()) == 1 })

	if got := h.player.Played()[0]; got != "reply to こんにちは" {
		t.Errorf("played %q", got)
	}
	clips := h.speaker.PlayedClips()
	if len(clips) != 1 || clips[0].Format != (audio.Format{SampleRate: 24000, Channels: 1}) {
		t.Fatalf("speaker clips: %+v", clips)
	}
	if s := h.ctrl.Stats(); s.Pauses != 1 || s.Resumes != 1 {
		t.Errorf("pause stats: %+v", s)
	}
	waitFor(t, "capture resumed", h.dev.Running)

	if err := h.stop(t); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.dev.CallCountClose != 1 {
		t.Errorf("capture closed %d times", h.dev.CallCountClose)
	}
}

func TestOrchestrator_NoiseNeverReachesTranscription(t *testing.T) {
	tr := &fakeTranscriber{}
	h := newHarness(t, tr, &fakeDialogue{}, pipeline.Config{}, false)

	h.speak(t, 5)
	h.speak(t, 20)
	time.Sleep(20 * time.Millisecond)

	tr.mu.Lock()
	calls := tr.calls
	tr.mu.Unlock()
	if calls != 0 {
		t.Errorf("transcriber called %d times for noise", calls)
	}
	if err := h.stop(t); err != nil {
		t.Fatal(err)
	}
}

func TestOrchestrator_RepliesInSpeechOrder(t *testing.T) {
	tr := &fakeTranscriber{}
	h := newHarness(t, tr, &fakeDialogue{}, pipeline.Config{}, false)

	for _, n := range []int{21, 30, 45} {
		h.speak(t, n)
	}
	waitFor(t, "three replies", func() bool { return len(h.player.Played()) == 3 })

	want := []string{
		"reply to utterance 1 (21 frames)",
		"reply to utterance 2 (30 frames)",
		"reply to utterance 3 (45 frames)",
	}
	for i, got := range h.player.Played() {
		if got != want[i] {
			t.Errorf("reply %d: got %q, want %q", i, got, want[i])
		}
	}
}

func TestOrchestrator_EmptyTranscripts(t *testing.T) {
	tests := []struct {
		name   string
		policy pipeline.EmptyTranscriptPolicy
		want   []string
	}{
		{name: "dropped by default", policy: "", want: []string{"next"}},
		{name: "forwarded", policy: pipeline.ForwardEmpty, want: []string{"", "next"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dlg := &fakeDialogue{}
			tr := &fakeTranscriber{texts: []string{"   ", "next"}}
			h := newHarness(t, tr, dlg, pipeline.Config{EmptyTranscripts: tt.policy}, false)

			h.speak(t, 30)
			h.speak(t, 30)
			waitFor(t, "reply to next", func() bool {
				played := h.player.Played()
				return len(played) > 0 && played[len(played)-1] == "reply to next"
			})

			got := dlg.Seen()
			if len(got) != len(tt.want) {
				t.Fatalf("dialogue saw %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("turn %d: got %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestOrchestrator_StageFailureDropsOnlyThatItem(t *testing.T) {
	tr := &fakeTranscriber{errAt: map[int]error{1: errdefs.Transcription("whisper", errors.New("decoder crashed"))}}
	h := newHarness(t, tr, &fakeDialogue{}, pipeline.Config{}, false)

	h.speak(t, 30)
	h.speak(t, 30)
	waitFor(t, "second reply", func() bool { return len(h.player.Played()) == 1 })

	if got := h.player.Played()[0]; got != "reply to utterance 2 (30 frames)" {
		t.Errorf("played %q", got)
	}
	if err := h.stop(t); err != nil {
		t.Fatalf("Run after per-item failure: %v", err)
	}
}

func TestOrchestrator_NoReplyIsDropped(t *testing.T) {
	dlg := &fakeDialogue{err: dialogue.ErrNoReply}
	h := newHarness(t, &fakeTranscriber{}, dlg, pipeline.Config{}, false)

	h.speak(t, 30)
	waitFor(t, "dialogue called", func() bool { return len(dlg.Seen()) == 1 })
	time.Sleep(20 * time.Millisecond)
	if n := len(h.player.Played()); n != 0 {
		t.Errorf("played %d clips", n)
	}
}

func TestOrchestrator_CancelWhileProviderBlocked(t *testing.T) {
	tr := &sttmock.Transcriber{Block: make(chan struct{}), Default: "never"}
	dlg := &fakeDialogue{}
	h := newHarness(t, tr, dlg, pipeline.Config{}, false)

	h.speak(t, 30)
	waitFor(t, "transcription in flight", func() bool { return tr.CallCount() == 1 })
	h.speak(t, 30)
	time.Sleep(20 * time.Millisecond)

	if err := h.stop(t); err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
	if h.dev.Running() {
		t.Error("capture still running after shutdown")
	}
	if h.dev.CallCountClose != 1 {
		t.Errorf("capture closed %d times", h.dev.CallCountClose)
	}
	if got := tr.CallCount(); got != 1 {
		t.Errorf("transcriber called %d times, want 1", got)
	}
	if seen := dlg.Seen(); len(seen) != 0 {
		t.Errorf("dialogue saw %q after cancel", seen)
	}
}

func TestOrchestrator_MalformedFrameIsFatal(t *testing.T) {
	h := newHarness(t, &fakeTranscriber{}, &fakeDialogue{}, pipeline.Config{}, false)

	h.dev.Push(make([]byte, frameBytes-2))
	select {
	case <-h.done:
		if !errors.Is(h.err, errdefs.ErrConfiguration) {
			t.Fatalf("got %v, want configuration error", h.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on a malformed frame")
	}
	if h.dev.CallCountClose != 1 {
		t.Errorf("capture closed %d times", h.dev.CallCountClose)
	}
}

func TestOrchestrator_CaptureStartFailure(t *testing.T) {
	dev := &audiomock.CaptureDevice{StartErr: errors.New("no microphone")}
	ctrl := duplex.NewController(dev)
	orch, err := pipeline.New(pipeline.Deps{
		Capture:     ctrl,
		VAD:         &vadmock.Session{},
		Transcriber: &fakeTranscriber{},
		Dialogue:    &fakeDialogue{},
		Synthesizer: fakeSynth{},
		Player:      duplex.NewGate(ctrl, &audiomock.Player{}),
		Logger:      slog.New(slog.DiscardHandler),
	}, pipeline.Config{Segmenter: segmenter.Config{FrameBytes: frameBytes, SampleRate: 16000}})
	if err != nil {
		t.Fatal(err)
	}

	err = orch.Run(context.Background())
	if !errors.Is(err, errdefs.ErrDevice) {
		t.Fatalf("got %v, want device error", err)
	}
}

func TestNew_Validation(t *testing.T) {
	seg := segmenter.Config{FrameBytes: frameBytes, SampleRate: 16000}
	full := func() pipeline.Deps {
		ctrl := duplex.NewController(&audiomock.CaptureDevice{})
		return pipeline.Deps{
			Capture:     ctrl,
			VAD:         &vadmock.Session{},
			Transcriber: &fakeTranscriber{},
			Dialogue:    &fakeDialogue{},
			Synthesizer: fakeSynth{},
			Player:      duplex.NewGate(ctrl, &audiomock.Player{}),
		}
	}

	tests := []struct {
		name   string
		mutate func(*pipeline.Deps, *pipeline.Config)
	}{
		{"missing transcriber", func(d *pipeline.Deps, _ *pipeline.Config) { d.Transcriber = nil }},
		{"missing player", func(d *pipeline.Deps, _ *pipeline.Config) { d.Player = nil }},
		{"bad policy", func(_ *pipeline.Deps, c *pipeline.Config) { c.EmptyTranscripts = "keep" }},
		{"bad frame size", func(_ *pipeline.Deps, c *pipeline.Config) { c.Segmenter.FrameBytes = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, cfg := full(), pipeline.Config{Segmenter: seg}
			tt.mutate(&deps, &cfg)
			if _, err := pipeline.New(deps, cfg); !errors.Is(err, errdefs.ErrConfiguration) {
				t.Fatalf("got %v, want configuration error", err)
			}
		})
	}
}
