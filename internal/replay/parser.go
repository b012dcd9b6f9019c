package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Message is one line of a replay file.
type Message struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Domain    string    `json:"domain,omitempty"`
}

type line struct {
	Role      string `json:"role"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	Domain    string `json:"domain"`
}

// ParseFile reads a JSONL conversation export.
func ParseFile(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads one JSON message per line. Malformed lines, unknown roles and
// messages without text are skipped. A missing or unparseable timestamp is
// left zero.
func Parse(r io.Reader) ([]Message, error) {
	var msgs []Message

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // 10MB line buffer
	for scanner.Scan() {
		var l line
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			continue
		}

		role := strings.ToLower(strings.TrimSpace(l.Role))
		if role != "user" && role != "assistant" {
			continue
		}
		if strings.TrimSpace(l.Text) == "" {
			continue
		}

		ts, _ := time.Parse(time.RFC3339Nano, l.Timestamp)
		msgs = append(msgs, Message{
			Role:      role,
			Text:      l.Text,
			Timestamp: ts,
			Domain:    l.Domain,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return msgs, nil
}
