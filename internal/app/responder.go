package app

import (
	"context"
	"fmt"
	"sync"
)

// CannedResponder is a stand-in for a real conversation backend: it
// acknowledges each utterance with a rotating prompt so the full
// listen-respond-speak loop can be exercised without one.
type CannedResponder struct {
	mu   sync.Mutex
	turn int
}

var cannedReplies = []string{
	"I understand. Could you tell me more about when this started?",
	"Thank you. Have you noticed anything that makes it better or worse?",
	"I see. Are you currently taking any medication for this?",
	"Noted. Based on what you have told me, I recommend discussing this with your doctor in person.",
}

func NewCannedResponder() *CannedResponder {
	return &CannedResponder{}
}

func (r *CannedResponder) Respond(ctx context.Context, userText string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	reply := cannedReplies[r.turn%len(cannedReplies)]
	r.turn++
	r.mu.Unlock()
	if reply == "" {
		return "", fmt.Errorf("no reply for %q", userText)
	}
	return reply, nil
}
