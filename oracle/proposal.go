// ABOUTME: Validation of oracle proposals into action drafts
// ABOUTME: Rejects missing fields, unknown types and confidence outside 0..100
package oracle

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/harperreed/leadpilot/models"
)

// ParseProposal extracts and validates an action draft from raw model text.
func ParseProposal(text string) (models.ActionDraft, error) {
	span, err := ExtractJSON(text)
	if err != nil {
		return models.ActionDraft{}, err
	}

	var raw map[string]any
	if err := decodeObject(span, &raw); err != nil {
		return models.ActionDraft{}, err
	}

	return validateProposal(raw)
}

func validateProposal(raw map[string]any) (models.ActionDraft, error) {
	var draft models.ActionDraft
	var missing []string

	draft.Type = stringField(raw, "type")
	switch {
	case draft.Type == "":
		missing = append(missing, "type")
	case !models.ValidActionType(draft.Type):
		return draft, fmt.Errorf("%w: unknown type %q", ErrInvalidProposal, draft.Type)
	}

	draft.Description = stringField(raw, "description")
	if draft.Description == "" {
		draft.Description = stringField(raw, "title")
	}
	if draft.Description == "" {
		missing = append(missing, "description")
	}

	steps, ok := raw["steps"]
	if !ok {
		missing = append(missing, "steps")
	} else {
		list, err := stringList(steps)
		if err != nil {
			return draft, fmt.Errorf("%w: steps: %v", ErrInvalidProposal, err)
		}
		draft.Steps = list
	}

	draft.Reasoning = stringField(raw, "reasoning")
	if draft.Reasoning == "" {
		missing = append(missing, "reasoning")
	}

	draft.Difficulty = stringField(raw, "difficulty")
	switch {
	case draft.Difficulty == "":
		missing = append(missing, "difficulty")
	case !models.ValidDifficulty(draft.Difficulty):
		return draft, fmt.Errorf("%w: unknown difficulty %q", ErrInvalidProposal, draft.Difficulty)
	}

	conf, ok := raw["confidence"]
	if !ok {
		missing = append(missing, "confidence")
	}

	if len(missing) > 0 {
		return draft, fmt.Errorf("%w: missing %s", ErrInvalidProposal, strings.Join(missing, ", "))
	}

	confidence, err := numberField(conf)
	if err != nil {
		return draft, fmt.Errorf("%w: confidence: %v", ErrInvalidProposal, err)
	}
	if confidence < 0 || confidence > 100 {
		return draft, fmt.Errorf("%w: confidence %v out of range [0,100]", ErrInvalidProposal, confidence)
	}
	draft.Confidence = int(math.Round(confidence))

	draft.Message = stringField(raw, "message")

	if changes, ok := raw["changes"]; ok && changes != nil {
		m, ok := changes.(map[string]any)
		if !ok {
			return draft, fmt.Errorf("%w: changes must be an object", ErrInvalidProposal)
		}
		draft.Changes = m
	}

	if signals, ok := raw["signals"]; ok && signals != nil {
		list, err := stringList(signals)
		if err != nil {
			return draft, fmt.Errorf("%w: signals: %v", ErrInvalidProposal, err)
		}
		draft.Signals = list
	}

	if draft.Type == models.ActionMessage && draft.Message == "" {
		return draft, fmt.Errorf("%w: message action without message text", ErrInvalidProposal)
	}
	if models.NeedsChanges(draft.Type) && len(draft.Changes) == 0 {
		return draft, fmt.Errorf("%w: %s action without changes", ErrInvalidProposal, draft.Type)
	}

	return draft, nil
}

func stringField(raw map[string]any, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}

func stringList(v any) ([]string, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("item %d is %T, not string", i, item)
		}
		out = append(out, s)
	}
	return out, nil
}

func numberField(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected number, got %T", v)
	}
}
