package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/go-github/v68/github"
)

// Event holds the parts of the triggering event payload used for deployment.
type Event struct {
	PusherName    string
	PusherEmail   string
	Repository    string
	DefaultBranch string
}

// ReadEvent decodes the webhook payload at path. Events other than push
// decode too; their missing fields stay empty.
func ReadEvent(path string) (Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Event{}, fmt.Errorf("failed to read event payload: %w", err)
	}
	return ParseEvent(data)
}

// ParseEvent decodes a webhook payload.
func ParseEvent(data []byte) (Event, error) {
	var payload github.PushEvent
	if err := json.Unmarshal(data, &payload); err != nil {
		return Event{}, fmt.Errorf("failed to parse event payload: %w", err)
	}

	return Event{
		PusherName:    payload.GetPusher().GetName(),
		PusherEmail:   payload.GetPusher().GetEmail(),
		Repository:    payload.GetRepo().GetFullName(),
		DefaultBranch: payload.GetRepo().GetDefaultBranch(),
	}, nil
}
