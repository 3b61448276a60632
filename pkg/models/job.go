package models

// Job is a master-issued job observed on the bus or started through the API.
// JID is the master's job id and is unique.
type Job struct {
	ID        string  `json:"id"`
	Timestamp Time    `json:"timestamp"`
	JID       string  `json:"jid"`
	User      *string `json:"user"`
	EventID   *string `json:"eventId"`
}

// JobReturn links one minion's result for a job to the originating event.
// Immutable after insert.
type JobReturn struct {
	ID        string `json:"id"`
	Timestamp Time   `json:"timestamp"`
	JID       string `json:"jid"`
	JobID     string `json:"jobId"`
	EventID   string `json:"eventId"`
	MinionID  string `json:"minionId"`
}
