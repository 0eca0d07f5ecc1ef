package duplex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/kaiwa/pkg/audio"
	"github.com/MrWong99/kaiwa/pkg/audio/wav"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// DefaultTrailingSilence keeps the microphone muted briefly after the last
// sample so the room echo of the reply is not captured.
const DefaultTrailingSilence = 200 * time.Millisecond

// ErrCaptureLost is returned by Gate.Play when capture could not be resumed
// after playback. The microphone is then dead and the pipeline cannot continue.
var ErrCaptureLost = errors.New("duplex: capture could not be resumed")

// Pauser is the part of Controller the Gate uses.
type Pauser interface {
	Pause() error
	Resume() error
}

// Gate plays synthesized clips with capture paused.
type Gate struct {
	capture Pauser
	player  audio.Player
	pad     time.Duration
	log     *slog.Logger
}

// GateOption is a functional option for configuring a Gate.
type GateOption func(*Gate)

// WithTrailingSilence sets how much silence is appended to every clip.
// Zero disables the pad.
func WithTrailingSilence(d time.Duration) GateOption {
	return func(g *Gate) { g.pad = d }
}

// WithGateLogger sets the logger.
func WithGateLogger(l *slog.Logger) GateOption {
	return func(g *Gate) { g.log = l }
}

// NewGate returns a Gate that mutes capture around player.
func NewGate(capture Pauser, player audio.Player, opts ...GateOption) *Gate {
	g := &Gate{capture: capture, player: player, pad: DefaultTrailingSilence, log: slog.Default()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Play decodes clip, pauses capture, renders the clip plus the trailing pad
// and resumes capture. The resume is deferred, so it runs on every exit
// path including player failure, cancellation and panic.
//
// Decode failures return before capture is touched. Player failures are
// device errors. If the resume itself fails the returned error wraps
// [ErrCaptureLost].
func (g *Gate) Play(ctx context.Context, clip types.SynthesizedAudio) (err error) {
	decoded, err := wav.Decode(clip.Data)
	if err != nil {
		return errdefs.Device("decode playback audio", err)
	}
	decoded.PCM = audio.AppendSilence(decoded.PCM, decoded.Format, g.pad)

	if err := g.capture.Pause(); err != nil {
		return err
	}
	defer func() {
		if rerr := g.capture.Resume(); rerr != nil {
			g.log.Error("capture resume failed after playback", "err", rerr)
			err = errors.Join(err, fmt.Errorf("%w: %w", ErrCaptureLost, rerr))
		}
	}()

	g.log.Debug("playing reply", "text", clip.Text, "style", clip.Style.Name, "duration", decoded.Duration())
	if err := g.player.Play(ctx, decoded); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errdefs.Device("play", err)
	}
	return nil
}
