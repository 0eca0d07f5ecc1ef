package dialogue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/kaptinlin/jsonrepair"

	"github.com/MrWong99/kaiwa/pkg/types"
)

// parseReply decodes an engine turn into a DialogueReply. Near-JSON output
// (trailing commas, code fences, single quotes) is repaired before giving up.
// When rs is non-nil the decoded document must satisfy it.
func parseReply(raw string, rs *jsonschema.Resolved) (types.DialogueReply, error) {
	var reply types.DialogueReply

	doc, err := unmarshalJSON(stripFence(raw))
	if err != nil {
		return reply, fmt.Errorf("decode reply: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return reply, fmt.Errorf("decode reply: want a JSON object, got %T", doc)
	}
	if rs != nil {
		if err := rs.Validate(obj); err != nil {
			return reply, fmt.Errorf("validate reply: %w", err)
		}
	}

	content, ok := obj["content"].(string)
	if !ok && obj["content"] != nil {
		return reply, errors.New("validate reply: content is not a string")
	}
	tone, ok := obj["tone"].(string)
	if !ok && obj["tone"] != nil {
		return reply, errors.New("validate reply: tone is not a string")
	}
	reply.Content = strings.TrimSpace(content)
	reply.Tone = tone
	return reply, nil
}

// unmarshalJSON decodes data, retrying once through jsonrepair on a syntax
// error.
func unmarshalJSON(data string) (any, error) {
	var v any
	err := json.Unmarshal([]byte(data), &v)
	if err == nil {
		return v, nil
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return nil, err
	}
	fixed, rerr := jsonrepair.JSONRepair(data)
	if rerr != nil {
		return nil, fmt.Errorf("%w (repair: %v)", err, rerr)
	}
	if err := json.Unmarshal([]byte(fixed), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// stripFence removes a surrounding markdown code fence, which some models add
// even in JSON mode.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
