package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/resalt-dev/resalt/pkg/config"
	"github.com/resalt-dev/resalt/pkg/errors"
)

// Directory attributes read off user entries.
const (
	attrMail     = "mail"
	attrMemberOf = "memberOf"
)

// opTimeout bounds every directory round trip.
const opTimeout = 30 * time.Second

// LDAPClient implements Client against an LDAP directory. Each call dials
// a fresh connection, binds with the service account, and closes on
// return; the servers this talks to are close and connection reuse is not
// worth the staleness handling.
type LDAPClient struct {
	cfg config.LDAP
}

var _ Client = (*LDAPClient)(nil)

// NewLDAPClient builds a client from the directory settings.
func NewLDAPClient(cfg config.LDAP) *LDAPClient {
	return &LDAPClient{cfg: cfg}
}

// Authenticate implements Client. The username is resolved with the
// service bind, then verified by binding as the found entry.
func (c *LDAPClient) Authenticate(ctx context.Context, username, password string) (*User, error) {
	// An empty password would be an unauthenticated bind, which LDAP
	// servers accept.
	if password == "" {
		return nil, nil
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	user, err := c.findByUsername(conn, username)
	if err != nil || user == nil {
		return nil, err
	}

	if err := conn.Bind(user.Ref, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return nil, nil
		}
		return nil, errors.NewUpstreamUnavailableError("directory bind failed", err)
	}
	return user, nil
}

// LookupByUsername implements Client.
func (c *LDAPClient) LookupByUsername(ctx context.Context, username string) (*User, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	return c.findByUsername(conn, username)
}

// LookupByRefs implements Client. Refs are entry DNs; each is resolved
// with a base-scoped read, and vanished entries are skipped.
func (c *LDAPClient) LookupByRefs(ctx context.Context, refs []string) ([]User, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	users := make([]User, 0, len(refs))
	for _, ref := range refs {
		req := ldap.NewSearchRequest(
			ref,
			ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false,
			"(objectClass=*)",
			c.userAttributes(),
			nil,
		)
		res, err := conn.Search(req)
		if err != nil {
			if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
				continue
			}
			return nil, errors.NewUpstreamUnavailableError("directory search failed", err)
		}
		if len(res.Entries) == 0 {
			continue
		}
		users = append(users, *c.entryToUser(res.Entries[0]))
	}
	return users, nil
}

// connect dials, optionally upgrades to TLS, and binds the service
// account.
func (c *LDAPClient) connect(ctx context.Context) (*ldap.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewUpstreamUnavailableError("directory unavailable", err)
	}

	tlsCfg := &tls.Config{
		InsecureSkipVerify: c.cfg.SkipTLSVerify, //nolint:gosec // operator-controlled setting
		MinVersion:         tls.VersionTLS12,
	}
	conn, err := ldap.DialURL(c.cfg.URL, ldap.DialWithTLSConfig(tlsCfg))
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("dialing directory", err)
	}
	conn.SetTimeout(opTimeout)

	if c.cfg.StartTLS {
		if err := conn.StartTLS(tlsCfg); err != nil {
			_ = conn.Close()
			return nil, errors.NewUpstreamUnavailableError("negotiating directory TLS", err)
		}
	}
	if c.cfg.BindDN != "" {
		if err := conn.Bind(c.cfg.BindDN, c.cfg.BindPassword); err != nil {
			_ = conn.Close()
			return nil, errors.NewUpstreamUnavailableError("directory service bind failed", err)
		}
	}
	return conn, nil
}

func (c *LDAPClient) findByUsername(conn *ldap.Conn, username string) (*User, error) {
	filter := fmt.Sprintf(c.cfg.UserFilter, ldap.EscapeFilter(username))
	req := ldap.NewSearchRequest(
		c.cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		filter,
		c.userAttributes(),
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("directory search failed", err)
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}
	if len(res.Entries) > 1 {
		return nil, errors.NewInternalError(
			fmt.Sprintf("directory filter %q matched %d entries", filter, len(res.Entries)), nil)
	}
	return c.entryToUser(res.Entries[0]), nil
}

func (c *LDAPClient) userAttributes() []string {
	return []string{c.cfg.UserAttribute, attrMail, attrMemberOf}
}

func (c *LDAPClient) entryToUser(entry *ldap.Entry) *User {
	return &User{
		Ref:       entry.DN,
		Username:  strings.ToLower(entry.GetAttributeValue(c.cfg.UserAttribute)),
		Email:     entry.GetAttributeValue(attrMail),
		GroupRefs: entry.GetAttributeValues(attrMemberOf),
	}
}
