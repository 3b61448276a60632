// Package directory integrates the external user directory: credential
// verification for directory-managed operators and the periodic
// reconciliation of directory-owned group memberships.
package directory

import (
	"context"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

// User is a directory record. Ref is the stable directory-side identifier
// (the entry DN for LDAP); GroupRefs carries the refs of the groups the
// user belongs to.
type User struct {
	Ref       string
	Username  string
	Email     string
	GroupRefs []string
}

// Client is the directory protocol surface. Lookup methods return nil
// (with a nil error) for unknown entries; transport faults are errors.
type Client interface {
	// Authenticate verifies a username and password. A nil user means
	// the directory rejected the credentials or does not know the
	// username.
	Authenticate(ctx context.Context, username, password string) (*User, error)

	// LookupByUsername resolves a username without verifying credentials.
	LookupByUsername(ctx context.Context, username string) (*User, error)

	// LookupByRefs batch-resolves directory refs. Refs that no longer
	// exist are omitted from the result, not errors.
	LookupByRefs(ctx context.Context, refs []string) ([]User, error)
}
