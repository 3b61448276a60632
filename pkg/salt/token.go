// Package salt talks to the master's HTTP API: operator login, job
// submission, key management, and the live event stream.
package salt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Token is the bearer credential issued by the master's login endpoint.
// Start and Expire are epoch seconds as reported by the master.
type Token struct {
	Token  string  `json:"token"`
	Start  float64 `json:"start"`
	Expire float64 `json:"expire"`
	User   string  `json:"user"`
	EAuth  string  `json:"eauth"`
}

// Expired reports whether the token is past its master-declared expiry,
// with a 5 second skew window.
func (t *Token) Expired() bool {
	return t.ExpiredAt(time.Now())
}

// ExpiredAt is Expired evaluated at a fixed instant.
func (t *Token) ExpiredAt(now time.Time) bool {
	return float64(now.Unix()) > t.Expire-5
}

// Matured reports whether the token is at least ten minutes old. Renewal in
// response to an unauthorized master reply is only permitted once the token
// has matured, which stops renewal loops on tokens the master rejects for
// reasons other than expiry.
func (t *Token) Matured() bool {
	return t.MaturedAt(time.Now())
}

// MaturedAt is Matured evaluated at a fixed instant.
func (t *Token) MaturedAt(now time.Time) bool {
	return float64(now.Unix()) > t.Start+600
}

// MarshalBlob serializes the token for storage on a session.
func (t *Token) MarshalBlob() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("serializing master token: %w", err)
	}
	return string(data), nil
}

// UnmarshalBlob deserializes a token stored on a session.
func UnmarshalBlob(blob string) (*Token, error) {
	var t Token
	if err := json.Unmarshal([]byte(blob), &t); err != nil {
		return nil, fmt.Errorf("deserializing master token: %w", err)
	}
	return &t, nil
}
