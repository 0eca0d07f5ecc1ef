// Package errdefs defines the error kinds shared by every pipeline stage.
//
// Adapters wrap their own faults and classify them with one of the kind
// constructors so that stage loops can decide how to react with errors.Is:
//
//	if errors.Is(err, errdefs.ErrTranscription) { /* log and drop */ }
//
// Per-utterance kinds (transcription, dialogue parse, synthesis) are logged
// and dropped by the orchestrator. ErrDevice during playback never leaves the
// microphone muted. ErrConfiguration is fatal at startup.
package errdefs

import (
	"errors"
	"fmt"
)

// Error kinds. Compare with errors.Is.
var (
	ErrTranscription = errors.New("transcription error")
	ErrDialogueParse = errors.New("dialogue parse error")
	ErrSynthesis     = errors.New("synthesis error")
	ErrDevice        = errors.New("device error")
	ErrConfiguration = errors.New("configuration error")
)

// Error carries a kind, the operation that failed and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.Error()
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Is reports whether target is the error's kind.
func (e *Error) Is(target error) bool { return target == e.Kind }

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

func wrap(kind error, op string, err error) error {
	// Already classified with the same kind; don't double wrap.
	var k *Error
	if errors.As(err, &k) && k.Kind == kind && op == "" {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Transcription classifies err as a recognition failure.
func Transcription(op string, err error) error { return wrap(ErrTranscription, op, err) }

// DialogueParse classifies err as malformed dialogue engine output.
func DialogueParse(op string, err error) error { return wrap(ErrDialogueParse, op, err) }

// Synthesis classifies err as a speech synthesis failure.
func Synthesis(op string, err error) error { return wrap(ErrSynthesis, op, err) }

// Device classifies err as an audio device fault.
func Device(op string, err error) error { return wrap(ErrDevice, op, err) }

// Configuration classifies err as invalid configuration.
func Configuration(op string, err error) error { return wrap(ErrConfiguration, op, err) }

// Kind returns the kind of err, or nil if it has none.
func Kind(err error) error {
	for _, k := range []error{ErrTranscription, ErrDialogueParse, ErrSynthesis, ErrDevice, ErrConfiguration} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName returns a short metric-friendly label for err's kind.
func KindName(err error) string {
	switch Kind(err) {
	case ErrTranscription:
		return "transcription"
	case ErrDialogueParse:
		return "dialogue_parse"
	case ErrSynthesis:
		return "synthesis"
	case ErrDevice:
		return "device"
	case ErrConfiguration:
		return "configuration"
	}
	return "other"
}
