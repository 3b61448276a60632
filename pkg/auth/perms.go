// Package auth provides authentication and authorization utilities:
// permission evaluation, password hashing, session token generation, and the
// HTTP middleware that attaches the caller's auth status to the request
// context.
package auth

import (
	"encoding/json"
	"strings"
)

// Permission identifiers gating API operations.
const (
	PermAdminSuperadmin    = "admin.superadmin"
	PermAdminGroup         = "admin.group"
	PermAdminUser          = "admin.user"
	PermEventList          = "event.list"
	PermJobList            = "job.list"
	PermJobRun             = "run.live"
	PermMinionList         = "minion.list"
	PermMinionRefresh      = "minion.refresh"
	PermMinionGrainExplore = "minion.grainexplorer"
	PermMinionPresetList   = "minion.presets.list"
	PermMinionPresetManage = "minion.presets.manage"
	PermKeyList            = "saltkey.list"
	PermKeyAccept          = "saltkey.accept"
	PermKeyReject          = "saltkey.reject"
	PermKeyDelete          = "saltkey.delete"
	PermUserList           = "user.list"
	PermUserPassword       = "user.password"
)

// resaltNamespaceKey selects the entries of an object-form perms entry that
// apply to this service; other keys carry master-side ACLs.
const resaltNamespaceKey = "@resalt"

// matchAll is the pattern granting every permission.
const matchAll = ".*"

// HasPermission reports whether the perms document grants the requested
// permission id. perms is the user's serialized JSON array; id is a
// "namespace.verb" identifier. Malformed documents never error: they simply
// grant nothing. Holding admin.superadmin grants everything.
func HasPermission(perms, id string) bool {
	var entries []any
	if err := json.Unmarshal([]byte(perms), &entries); err != nil {
		return false
	}
	if matchEntries(entries, PermAdminSuperadmin) {
		return true
	}
	return matchEntries(entries, id)
}

func matchEntries(entries []any, id string) bool {
	for _, entry := range entries {
		switch v := entry.(type) {
		case string:
			if matchPattern(v, id) {
				return true
			}
		case map[string]any:
			scoped, ok := v[resaltNamespaceKey].([]any)
			if !ok {
				continue
			}
			for _, p := range scoped {
				pattern, ok := p.(string)
				if !ok {
					continue
				}
				if matchPattern(pattern, id) {
					return true
				}
			}
		}
	}
	return false
}

// matchPattern compares a single dot-separated pattern to a permission id.
// "*" stands for exactly one component, except in last position where it
// swallows the remainder; the bare pattern ".*" matches everything.
func matchPattern(pattern, id string) bool {
	if pattern == matchAll || pattern == id {
		return true
	}
	patParts := strings.Split(pattern, ".")
	idParts := strings.Split(id, ".")
	for i, part := range patParts {
		if part == "*" && i == len(patParts)-1 {
			return len(idParts) >= i
		}
		if i >= len(idParts) {
			return false
		}
		if part != "*" && part != idParts[i] {
			return false
		}
	}
	return len(patParts) == len(idParts)
}
