// Package transcript corrects recognised text before it reaches the dialogue
// engine.
//
// Speech recognisers reliably misspell a handful of proper nouns (the
// persona's own name, place names) and, on near-silent input, emit stock
// phrases that were never spoken. A [Corrector] applies two optional passes:
//
//  1. Suppression: a transcript consisting only of a configured phrase,
//     ignoring surrounding punctuation, becomes empty. The pipeline's empty
//     transcript policy then decides its fate.
//  2. Replacement: configured phrases are replaced wherever they occur. At
//     each position the longest matching phrase wins; replaced text is not
//     scanned again.
//
// Matching is on exact substrings since Japanese text is not space separated.
package transcript

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/kaiwa/pkg/provider/stt"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// Correction records a single substitution.
type Correction struct {
	Original  string
	Corrected string
}

// Result is the output of [Corrector.Correct].
type Result struct {
	// Text is the corrected transcript.
	Text string

	// Suppressed is true when the whole transcript matched a suppressed
	// phrase and Text is empty.
	Suppressed bool

	// Corrections lists the substitutions in the order they were applied.
	Corrections []Correction
}

type pair struct{ from, to string }

// Corrector applies phrase suppression and replacement. The zero value and a
// Corrector built from empty lists pass text through unchanged. It is safe
// for concurrent use.
type Corrector struct {
	pairs    []pair
	suppress map[string]struct{}
}

// New builds a Corrector. Empty phrases are ignored.
func New(replacements map[string]string, suppress []string) *Corrector {
	c := &Corrector{suppress: make(map[string]struct{}, len(suppress))}
	for from, to := range replacements {
		if from != "" {
			c.pairs = append(c.pairs, pair{from: from, to: to})
		}
	}
	sort.Slice(c.pairs, func(i, j int) bool {
		if len(c.pairs[i].from) != len(c.pairs[j].from) {
			return len(c.pairs[i].from) > len(c.pairs[j].from)
		}
		return c.pairs[i].from < c.pairs[j].from
	})
	for _, s := range suppress {
		if n := normalize(s); n != "" {
			c.suppress[n] = struct{}{}
		}
	}
	return c
}

// Enabled reports whether the Corrector would ever change text.
func (c *Corrector) Enabled() bool {
	return c != nil && (len(c.pairs) > 0 || len(c.suppress) > 0)
}

// Correct applies suppression, then replacement, to text.
func (c *Corrector) Correct(text string) Result {
	if !c.Enabled() {
		return Result{Text: text}
	}
	if _, ok := c.suppress[normalize(text)]; ok {
		return Result{Suppressed: true}
	}
	if len(c.pairs) == 0 {
		return Result{Text: text}
	}

	var (
		b   strings.Builder
		res Result
	)
	b.Grow(len(text))
	for i := 0; i < len(text); {
		matched := false
		for _, p := range c.pairs {
			if strings.HasPrefix(text[i:], p.from) {
				b.WriteString(p.to)
				res.Corrections = append(res.Corrections, Correction{Original: p.from, Corrected: p.to})
				i += len(p.from)
				matched = true
				break
			}
		}
		if !matched {
			_, size := utf8.DecodeRuneInString(text[i:])
			b.WriteString(text[i : i+size])
			i += size
		}
	}
	res.Text = b.String()
	return res
}

// normalize trims whitespace and punctuation from both ends.
func normalize(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

// Transcriber runs a [Corrector] over every result of the wrapped
// transcriber.
type Transcriber struct {
	next stt.Transcriber
	c    *Corrector
	log  *slog.Logger
}

// Wrap decorates next with c. A nil logger uses slog.Default().
func Wrap(next stt.Transcriber, c *Corrector, log *slog.Logger) *Transcriber {
	if log == nil {
		log = slog.Default()
	}
	return &Transcriber{next: next, c: c, log: log}
}

// Transcribe implements [stt.Transcriber].
func (t *Transcriber) Transcribe(ctx context.Context, seg types.SpeechSegment) (string, error) {
	text, err := t.next.Transcribe(ctx, seg)
	if err != nil {
		return "", err
	}
	res := t.c.Correct(text)
	switch {
	case res.Suppressed:
		t.log.Debug("suppressed transcript", "text", text)
	case len(res.Corrections) > 0:
		t.log.Debug("corrected transcript", "from", text, "to", res.Text, "corrections", len(res.Corrections))
	}
	return res.Text, nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
