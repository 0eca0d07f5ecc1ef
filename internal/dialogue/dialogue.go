// Package dialogue holds the conversation with the language model.
//
// An [Engine] owns the ConversationState: the ordered list of turns sent to the
// model on every call, seeded with the system prompt. Submit appends the
// user's utterance, asks the model for a reply constrained to the reply
// schema, appends the model's raw turn and returns the parsed
// [types.DialogueReply]. The state grows by two turns per successful call and
// by one (the user turn) when the model's output cannot be parsed, so a
// malformed turn is never replayed to the model.
//
// The tone enum is sent to the model but not enforced on the reply: a reply
// with an unknown or missing tone is returned as is and voiced in the default
// style.
//
// An Engine is driven by a single pipeline stage; its methods are nevertheless
// safe for concurrent use.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/MrWong99/kaiwa/internal/observe"
	"github.com/MrWong99/kaiwa/pkg/errdefs"
	"github.com/MrWong99/kaiwa/pkg/provider/llm"
	"github.com/MrWong99/kaiwa/pkg/types"
)

// ErrNoReply is returned by Submit when the model chose not to answer (empty
// content). The exchange is kept in the conversation state.
var ErrNoReply = errors.New("dialogue: no reply")

// Option configures an Engine.
type Option func(*Engine)

// WithSystemPrompt seeds the conversation with a system turn. An empty prompt
// leaves the conversation unseeded.
func WithSystemPrompt(prompt string) Option {
	return func(e *Engine) { e.systemPrompt = prompt }
}

// WithSchema replaces the generated reply schema, e.g. with one loaded by
// [LoadSchema].
func WithSchema(s *jsonschema.Schema) Option {
	return func(e *Engine) { e.schema = s }
}

// WithTemperature sets the sampling temperature. Zero leaves the provider
// default.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.temperature = t }
}

// WithMaxTokens caps the length of each reply. Zero means no cap.
func WithMaxTokens(n int) Option {
	return func(e *Engine) { e.maxTokens = n }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine is the dialogue worker.
type Engine struct {
	provider     llm.Provider
	systemPrompt string
	schema       *jsonschema.Schema
	resolved     *jsonschema.Resolved
	format       *llm.ResponseSchema
	temperature  float64
	maxTokens    int
	logger       *slog.Logger

	mu      sync.Mutex
	history []types.Message
}

// New creates an Engine for provider. styles provides the allowed tones for
// the generated reply schema; it may be empty only when WithSchema supplies
// one. A schema that does not resolve is a configuration error.
func New(provider llm.Provider, styles []types.VoiceStyle, opts ...Option) (*Engine, error) {
	if provider == nil {
		return nil, errdefs.Configuration("dialogue", errors.New("llm provider is required"))
	}
	e := &Engine{provider: provider}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.schema == nil {
		if len(styles) == 0 {
			return nil, errdefs.Configuration("dialogue", errors.New("no voice styles to offer as tones"))
		}
		e.schema = BuildSchema(styles)
	}

	if _, err := e.schema.Resolve(nil); err != nil {
		return nil, errdefs.Configuration("dialogue schema", err)
	}
	rs, err := shapeSchema(e.schema)
	if err != nil {
		return nil, errdefs.Configuration("dialogue schema", err)
	}
	m, err := schemaMap(e.schema)
	if err != nil {
		return nil, errdefs.Configuration("dialogue schema", err)
	}
	e.resolved = rs
	e.format = &llm.ResponseSchema{Name: SchemaName, Schema: m}
	e.history = e.seed()
	return e, nil
}

// Submit sends text as the user's turn and returns the model's reply.
//
// Errors:
//   - ErrNoReply: the model returned nothing, or the reply's content is
//     empty. Both turns stay in the history.
//   - errdefs.ErrDialogueParse: the model's output did not parse or did not
//     have the reply's shape. Only the user turn stays in the history.
//   - any other error: the model could not be reached. Only the user turn
//     stays in the history.
func (e *Engine) Submit(ctx context.Context, text string) (types.DialogueReply, error) {
	ctx, span := observe.StartSpan(ctx, "dialogue.submit")
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, types.Message{Role: types.RoleUser, Content: text})

	resp, err := e.provider.Complete(ctx, llm.CompletionRequest{
		Messages:       append([]types.Message(nil), e.history...),
		Temperature:    e.temperature,
		MaxTokens:      e.maxTokens,
		ResponseSchema: e.format,
	})
	if err != nil {
		return types.DialogueReply{}, fmt.Errorf("dialogue: complete: %w", err)
	}

	observe.Logger(ctx, e.logger).Info("dialogue reply", "content", resp.Content,
		"prompt_tokens", resp.Usage.PromptTokens, "completion_tokens", resp.Usage.CompletionTokens)

	if strings.TrimSpace(resp.Content) == "" {
		e.history = append(e.history, types.Message{Role: types.RoleAssistant, Content: resp.Content})
		return types.DialogueReply{}, ErrNoReply
	}

	reply, err := parseReply(resp.Content, e.resolved)
	if err != nil {
		return types.DialogueReply{}, errdefs.DialogueParse("dialogue reply", err)
	}
	e.history = append(e.history, types.Message{Role: types.RoleAssistant, Content: resp.Content})
	if reply.Content == "" {
		return types.DialogueReply{}, ErrNoReply
	}
	return reply, nil
}

// Reset discards the conversation and restores the seeded state.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = e.seed()
}

// History returns a copy of the conversation state.
func (e *Engine) History() []types.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.Message(nil), e.history...)
}

// Len returns the number of turns in the conversation state.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.history)
}

// Schema returns the reply schema sent with every request.
func (e *Engine) Schema() *jsonschema.Schema { return e.schema }

func (e *Engine) seed() []types.Message {
	if e.systemPrompt == "" {
		return nil
	}
	return []types.Message{{Role: types.RoleSystem, Content: e.systemPrompt}}
}
