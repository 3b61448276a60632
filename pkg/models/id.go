package models

import "github.com/google/uuid"

// Entity id prefixes keep ids recognizable in logs and URLs.
const (
	userIDPrefix      = "usr_"
	groupIDPrefix     = "grp_"
	eventIDPrefix     = "evt_"
	jobIDPrefix       = "job_"
	jobReturnIDPrefix = "jret_"
	presetIDPrefix    = "pst_"
)

// NewUserID returns a fresh user id.
func NewUserID() string {
	return userIDPrefix + uuid.NewString()
}

// NewGroupID returns a fresh permission group id.
func NewGroupID() string {
	return groupIDPrefix + uuid.NewString()
}

// NewEventID returns a fresh event id.
func NewEventID() string {
	return eventIDPrefix + uuid.NewString()
}

// NewJobID returns a fresh job id.
func NewJobID() string {
	return jobIDPrefix + uuid.NewString()
}

// NewJobReturnID returns a fresh job return id.
func NewJobReturnID() string {
	return jobReturnIDPrefix + uuid.NewString()
}

// NewPresetID returns a fresh minion preset id.
func NewPresetID() string {
	return presetIDPrefix + uuid.NewString()
}
