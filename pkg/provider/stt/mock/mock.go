// Package mock provides a test double for the stt.Transcriber interface.
//
// Transcriber returns scripted results in order and records every segment it
// was asked to transcribe:
//
//	tr := &mock.Transcriber{Texts: []string{"こんにちは"}}
//	text, _ := tr.Transcribe(ctx, seg)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/kaiwa/pkg/provider/stt"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Texts supplies the result of successive Transcribe calls. Once
	// exhausted, Transcribe returns Default.
	Texts []string

	// Default is returned after Texts is exhausted.
	Default string

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Block, if non-nil, makes Transcribe wait until it is closed or the
	// context is cancelled.
	Block chan struct{}

	// Segments records every segment passed to Transcribe in order.
	Segments []types.SpeechSegment
}

// Transcribe records the call and returns the next scripted result.
func (t *Transcriber) Transcribe(ctx context.Context, seg types.SpeechSegment) (string, error) {
	t.mu.Lock()
	t.Segments = append(t.Segments, seg)
	block := t.Block
	t.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return "", t.Err
	}
	if len(t.Texts) > 0 {
		text := t.Texts[0]
		t.Texts = t.Texts[1:]
		return text, nil
	}
	return t.Default, nil
}

// CallCount returns the number of Transcribe calls.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Segments)
}

// Ensure Transcriber implements stt.Transcriber at compile time.
var _ stt.Transcriber = (*Transcriber)(nil)
