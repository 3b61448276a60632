package models

// MinionPreset is a saved minion filter expression selectable from the UI.
// Filter holds the serialized []Filter document.
type MinionPreset struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Filter string `json:"filter"`
}
