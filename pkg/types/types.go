// Package types defines the shared data model used across kaiwa packages.
//
// Each value here crosses exactly one pipeline stage boundary at a time: a
// frame is consumed once by the segmenter, a segment once by transcription,
// a reply once by synthesis and a synthesized clip once by playback. Stage
// packages own their internal state; only the hand-off types live here to
// avoid import cycles between providers and the orchestrator.
package types

import "time"

// AudioFrame is one fixed-length block of 16-bit signed little-endian mono PCM
// as delivered by a capture device.
type AudioFrame struct {
	// Data holds the raw PCM bytes. Its length is always
	// SampleRate * FrameDuration * 2 for a given device configuration.
	Data []byte

	// SampleRate in Hz (e.g., 16000).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Samples returns the number of 16-bit samples in the frame.
func (f AudioFrame) Samples() int { return len(f.Data) / 2 }

// SpeechSegment is the ordered concatenation of the speech frames of one
// candidate utterance. It is immutable once emitted by the segmenter.
type SpeechSegment struct {
	// PCM is 16-bit signed little-endian mono audio.
	PCM []byte

	// SampleRate in Hz.
	SampleRate int

	// Frames is the number of speech frames that were concatenated.
	Frames int

	// Start is the capture timestamp of the first frame in the segment.
	Start time.Duration
}

// Duration returns the playback length of the segment.
func (s SpeechSegment) Duration() time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return time.Duration(len(s.PCM)/2) * time.Second / time.Duration(s.SampleRate)
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversation turn.
type Message struct {
	Role    Role
	Content string
}

// DialogueReply is the structured answer produced by the dialogue engine.
type DialogueReply struct {
	// Content is the text to be spoken.
	Content string `json:"content"`

	// Tone names the expressive voice style the content should be spoken in.
	// Values are style names as listed by the synthesis service.
	Tone string `json:"tone"`
}

// VoiceStyle is one expressive style offered by the synthesis service.
type VoiceStyle struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// SynthesizedAudio is an encoded audio clip (a WAV container for VOICEVOX)
// ready for playback.
type SynthesizedAudio struct {
	Data []byte

	// Text is the content the clip was synthesized from, kept for logging.
	Text string

	// Style is the voice style the clip was synthesized with.
	Style VoiceStyle
}
