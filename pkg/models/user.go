package models

import "encoding/json"

// User is an operator identity. Perms holds the serialized permission
// document as a JSON array string; DirectoryRef is set iff the user is
// managed by the external directory, in which case no local password exists.
type User struct {
	ID           string
	Username     string
	Password     *string
	Perms        string
	LastLogin    *Time
	Email        *string
	DirectoryRef *string
}

// MarshalJSON renders the public view of the user. The password hash is
// never serialized; perms is inlined as a JSON array, degrading to an empty
// array when the stored document is missing or malformed.
func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID           string          `json:"id"`
		Username     string          `json:"username"`
		Perms        json.RawMessage `json:"perms"`
		LastLogin    *Time           `json:"lastLogin"`
		Email        *string         `json:"email"`
		DirectoryRef *string         `json:"directoryRef"`
	}{u.ID, u.Username, PermsArray(u.Perms), u.LastLogin, u.Email, u.DirectoryRef})
}

// PermsArray validates a stored perms document, substituting an empty array
// for missing or malformed values so display paths never fail.
func PermsArray(perms string) json.RawMessage {
	raw := json.RawMessage(perms)
	if len(raw) == 0 || !json.Valid(raw) {
		return json.RawMessage(`[]`)
	}
	var arr []any
	if err := json.Unmarshal(raw, &arr); err != nil {
		return json.RawMessage(`[]`)
	}
	return raw
}

// PermissionGroup is a named permission set users can be members of.
// DirectoryRef marks groups whose membership is owned by directory sync.
type PermissionGroup struct {
	ID           string
	Name         string
	Perms        string
	DirectoryRef *string
}

// MarshalJSON inlines perms as a JSON array, as for User.
func (g PermissionGroup) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID           string          `json:"id"`
		Name         string          `json:"name"`
		Perms        json.RawMessage `json:"perms"`
		DirectoryRef *string         `json:"directoryRef"`
	}{g.ID, g.Name, PermsArray(g.Perms), g.DirectoryRef})
}
