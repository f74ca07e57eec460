package agent

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ActionRecord is one dispatched tool call, kept for the task report and
// debug logging.
type ActionRecord struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Tool      string          `json:"tool"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    string          `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	Took      time.Duration   `json:"took"`
}

// History accumulates the action trail of a single task. Not safe for
// concurrent use; the agent loop is sequential.
type History struct {
	records []ActionRecord
}

func (h *History) Add(tool string, input json.RawMessage, output string, err error, took time.Duration) ActionRecord {
	rec := ActionRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Tool:      tool,
		Input:     input,
		Output:    truncate(output, 500),
		Took:      took,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	h.records = append(h.records, rec)
	return rec
}

func (h *History) Records() []ActionRecord {
	return append([]ActionRecord(nil), h.records...)
}

func (h *History) Len() int { return len(h.records) }

// truncate cuts s at max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "..."
}
