// Package oto provides an audio.Player backed by ebitengine/oto.
//
// oto allows a single output context per process, so a Player owns it for
// its whole lifetime. Clips whose sample rate differs from the output rate are
// resampled with a high quality polyphase resampler before playback.
package oto

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ebitengine/oto/v3"
	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/MrWong99/kaiwa/pkg/audio"
)

// Compile-time assertion that Player satisfies audio.Player.
var _ audio.Player = (*Player)(nil)

const pollInterval = 10 * time.Millisecond

// Player renders clips to the default output device.
type Player struct {
	ctx    *oto.Context
	format audio.Format
	log    *slog.Logger
}

// Option is a functional option for configuring a Player.
type Option func(*Player)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) { p.log = l }
}

// New opens the output device at the given format and waits until it is
// ready to accept audio.
func New(format audio.Format, opts ...Option) (*Player, error) {
	if format.SampleRate <= 0 || format.Channels < 1 || format.Channels > 2 {
		return nil, fmt.Errorf("oto: unsupported output format %d Hz, %d channels", format.SampleRate, format.Channels)
	}
	p := &Player{format: format, log: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	octx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   50 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("oto: open output: %w", err)
	}
	<-ready
	p.ctx = octx
	return p, nil
}

// Play implements audio.Player. It blocks until the clip has drained from the
// output buffer or ctx is cancelled, in which case playback is cut short.
func (p *Player) Play(ctx context.Context, clip audio.Clip) error {
	pcm, err := p.prepare(clip)
	if err != nil {
		return err
	}
	if len(pcm) == 0 {
		return nil
	}

	pl := p.ctx.NewPlayer(bytes.NewReader(pcm))
	defer pl.Close()
	pl.Play()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for pl.IsPlaying() {
		select {
		case <-ctx.Done():
			pl.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	if err := pl.Err(); err != nil {
		return fmt.Errorf("oto: playback: %w", err)
	}
	return nil
}

// Close implements audio.Player.
func (p *Player) Close() error {
	if p.ctx == nil {
		return nil
	}
	return p.ctx.Suspend()
}

// prepare converts clip to the output format.
func (p *Player) prepare(clip audio.Clip) ([]byte, error) {
	if clip.Format.SampleRate != p.format.SampleRate && clip.Format.SampleRate > 0 {
		pcm, err := resampleHQ(clip.PCM, clip.Format, p.format.SampleRate)
		if err != nil {
			p.log.Warn("oto: high quality resample failed, using linear", "err", err)
		} else {
			clip = audio.Clip{PCM: pcm, Format: audio.Format{SampleRate: p.format.SampleRate, Channels: clip.Format.Channels}}
		}
	}
	out, err := audio.Convert(clip, p.format)
	if err != nil {
		return nil, fmt.Errorf("oto: %w", err)
	}
	return out.PCM, nil
}

// resampleHQ resamples interleaved 16-bit PCM to dstRate.
func resampleHQ(pcm []byte, src audio.Format, dstRate int) ([]byte, error) {
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(src.SampleRate),
		OutputRate: float64(dstRate),
		Channels:   src.Channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}

	n := len(pcm) / 2
	in := make([]float64, n)
	for i := range n {
		in[i] = float64(int16(uint16(pcm[i*2])|uint16(pcm[i*2+1])<<8)) / 32768.0
	}
	res, err := rs.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	// Keep whole frames only.
	res = res[:len(res)/src.Channels*src.Channels]
	out := make([]byte, len(res)*2)
	for i, s := range res {
		v := int16(s * 32767.0)
		if s > 1.0 {
			v = 32767
		} else if s < -1.0 {
			v = -32768
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out, nil
}
