package replay

import (
	"strings"
	"time"
)

// Exchange is a user message and everything the assistant said before the
// next user message.
type Exchange struct {
	User      string
	Assistant string
	Domain    string
	Timestamp time.Time
}

// Pair groups messages into exchanges. Assistant replies are joined with a
// blank line. Assistant messages before the first user message are dropped,
// and a user message with no reply yields an exchange with empty Assistant.
func Pair(msgs []Message) []Exchange {
	var out []Exchange
	var current *Exchange
	var replies []string

	flush := func() {
		if current == nil {
			return
		}
		current.Assistant = strings.Join(replies, "\n\n")
		out = append(out, *current)
		current, replies = nil, nil
	}

	for _, m := range msgs {
		switch m.Role {
		case "user":
			flush()
			current = &Exchange{User: m.Text, Domain: m.Domain, Timestamp: m.Timestamp}
		case "assistant":
			if current == nil {
				continue
			}
			replies = append(replies, m.Text)
		}
	}
	flush()
	return out
}
