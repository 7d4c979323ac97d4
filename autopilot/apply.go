// ABOUTME: Translation of queued actions into lead store writes and user edits
// ABOUTME: Merges user modifications into drafts and derives the fields to write
package autopilot

import (
	"fmt"
	"time"

	"github.com/harperreed/leadpilot/models"
)

const defaultReminderDelay = 24 * time.Hour

// leadFields returns the lead fields an applied action writes.
func leadFields(a *models.QueuedAction, now time.Time) map[string]any {
	fields := make(map[string]any, len(a.Changes)+2)
	for k, v := range a.Changes {
		fields[k] = v
	}

	switch a.Type {
	case models.ActionMessage:
		if _, ok := fields["lastInteractionSummary"]; !ok && a.Message != "" {
			fields["lastInteractionSummary"] = "Message sent: " + a.Message
		}
		if _, ok := fields["lastInteractionDate"]; !ok {
			fields["lastInteractionDate"] = now.UTC().Format(time.RFC3339)
		}
	case models.ActionReminder:
		if _, ok := fields["nextFollowUpAt"]; !ok {
			fields["nextFollowUpAt"] = now.Add(defaultReminderDelay).UTC().Format(time.RFC3339)
		}
	}
	return fields
}

// checkWritable rejects drafts whose application would leave the lead untouched.
func checkWritable(d models.ActionDraft) error {
	if models.NeedsChanges(d.Type) && len(d.Changes) == 0 {
		return fmt.Errorf("%s action without changes", d.Type)
	}
	return nil
}

// mergeModifications applies user edits to a draft. Known draft keys replace
// the draft fields; anything else lands in Changes, where a nil value removes
// the key.
func mergeModifications(d *models.ActionDraft, mods map[string]any) error {
	for k, v := range mods {
		switch k {
		case "message", "description", "reasoning":
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w: %s must be a string", ErrInvalidModification, k)
			}
			switch k {
			case "message":
				d.Message = s
			case "description":
				d.Description = s
			case "reasoning":
				d.Reasoning = s
			}
		case "steps":
			steps, err := toStrings(v)
			if err != nil {
				return fmt.Errorf("%w: steps: %v", ErrInvalidModification, err)
			}
			d.Steps = steps
		default:
			if d.Changes == nil {
				d.Changes = make(map[string]any)
			}
			if v == nil {
				delete(d.Changes, k)
				continue
			}
			d.Changes[k] = v
		}
	}
	return nil
}

func toStrings(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a list, got %T", v)
	}
}

func copyDraft(d models.ActionDraft) models.ActionDraft {
	c := d
	if d.Steps != nil {
		c.Steps = append([]string(nil), d.Steps...)
	}
	if d.Signals != nil {
		c.Signals = append([]string(nil), d.Signals...)
	}
	if d.Changes != nil {
		c.Changes = make(map[string]any, len(d.Changes))
		for k, v := range d.Changes {
			c.Changes[k] = v
		}
	}
	return c
}
