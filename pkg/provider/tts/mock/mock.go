// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return a fixed style catalogue and canned clips, and to
// verify which text and style reached the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    StylesResult: []types.VoiceStyle{{ID: 2, Name: "普通"}},
//	    Clip:         wav.Encode(pcm, 24000, 1),
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/kaiwa/pkg/provider/tts"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Style is the VoiceStyle passed to Synthesize.
	Style types.VoiceStyle
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// StylesResult is returned by Styles.
	StylesResult []types.VoiceStyle

	// StylesErr, if non-nil, is returned as the error from Styles.
	StylesErr error

	// Clip is returned by every successful Synthesize call.
	Clip []byte

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// --- Call records ---

	// StylesCallCount is the number of times Styles was called.
	StylesCallCount int

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Styles records the call and returns StylesResult, StylesErr.
func (p *Provider) Styles(_ context.Context) ([]types.VoiceStyle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StylesCallCount++
	if p.StylesErr != nil {
		return nil, p.StylesErr
	}
	return append([]types.VoiceStyle(nil), p.StylesResult...), nil
}

// Synthesize records the call and returns Clip, SynthesizeErr. A cancelled
// context wins over both.
func (p *Provider) Synthesize(ctx context.Context, text string, style types.VoiceStyle) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Text: text, Style: style})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.SynthesizeErr != nil {
		return nil, p.SynthesizeErr
	}
	return p.Clip, nil
}

// Calls returns a copy of the recorded Synthesize calls.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
