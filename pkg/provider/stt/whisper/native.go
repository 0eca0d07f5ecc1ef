// This file contains the Native transcriber backed by the whisper.cpp cgo
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/provider/stt"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// Compile-time assertion that Native satisfies stt.Transcriber.
var _ stt.Transcriber = (*Native)(nil)

// Native implements stt.Transcriber using the whisper.cpp Go bindings,
// eliminating HTTP overhead entirely. The model is loaded once at startup.
type Native struct {
	// mu serialises inference: the model's compute state is not reentrant.
	mu    sync.Mutex
	model whisperlib.Model
	opts  stt.Options
	log   *slog.Logger
}

// NativeOption is a functional option for configuring a Native transcriber.
type NativeOption func(*Native)

// WithNativeOptions sets language and beam size.
func WithNativeOptions(o stt.Options) NativeOption {
	return func(n *Native) { n.opts = o }
}

// WithNativeLogger sets the logger used for non-fatal inference warnings.
func WithNativeLogger(l *slog.Logger) NativeOption {
	return func(n *Native) { n.log = l }
}

// NewNative loads the whisper.cpp model from modelPath. The caller must call
// Close when the transcriber is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*Native, error) {
	if modelPath == "" {
		return nil, errdefs.Configuration("whisper", errors.New("model path must not be empty"))
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, errdefs.Configuration("whisper", fmt.Errorf("load model %q: %w", modelPath, err))
	}

	n := &Native{model: model, log: slog.Default()}
	for _, o := range opts {
		o(n)
	}
	n.opts = n.opts.WithDefaults()
	return n, nil
}

// Close releases the whisper model.
func (n *Native) Close() error {
	if n.model != nil {
		return n.model.Close()
	}
	return nil
}

// Transcribe runs the model over seg and joins the decoded segments.
// Timestamps are not computed.
func (n *Native) Transcribe(ctx context.Context, seg types.SpeechSegment) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := n.infer(seg.PCM)
	if err != nil {
		return "", errdefs.Transcription("whisper native", err)
	}
	return text, nil
}

func (n *Native) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32(pcm)

	n.mu.Lock()
	defer n.mu.Unlock()

	wctx, err := n.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(n.opts.Language); err != nil {
		n.log.Warn("whisper: failed to set language, using default", "language", n.opts.Language, "err", err)
	}
	wctx.SetBeamSize(n.opts.BeamSize)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var b strings.Builder
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		b.WriteString(segment.Text)
	}
	return strings.TrimSpace(b.String()), nil
}
