// Package events defines the payloads exchanged between services over the broker.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AccountCreated is published by Identity-Issuer on the accounts fanout
// exchange after a registration commits.
type AccountCreated struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func (e AccountCreated) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func ParseAccountCreated(body []byte) (AccountCreated, error) {
	var e AccountCreated
	if err := json.Unmarshal(body, &e); err != nil {
		return AccountCreated{}, fmt.Errorf("decode account event: %w", err)
	}
	if e.ID <= 0 || e.Username == "" {
		return AccountCreated{}, fmt.Errorf("account event missing id or username")
	}
	return e, nil
}

// PostCreated bodies are the post id as decimal text.
func PostCreated(postID int64) []byte {
	return []byte(strconv.FormatInt(postID, 10))
}

func ParsePostCreated(body []byte) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid post id %q", body)
	}
	return id, nil
}
