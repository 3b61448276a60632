package models

// Event is one raw master bus event. Immutable after insert.
type Event struct {
	ID        string `json:"id"`
	Timestamp Time   `json:"timestamp"`
	Tag       string `json:"tag"`
	Data      string `json:"data"`
}
