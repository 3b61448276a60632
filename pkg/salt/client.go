package salt

import (
	"context"
	"encoding/json"
)

//go:generate mockgen -destination=mocks/mock_client.go -package=mocks -source=client.go Client

// ClientKind selects the master-side execution client for a job.
type ClientKind string

// Master execution clients.
const (
	ClientLocal       ClientKind = "local"
	ClientLocalAsync  ClientKind = "local_async"
	ClientLocalBatch  ClientKind = "local_batch"
	ClientRunner      ClientKind = "runner"
	ClientRunnerAsync ClientKind = "runner_async"
	ClientWheel       ClientKind = "wheel"
	ClientWheelAsync  ClientKind = "wheel_async"
)

// TargetType selects how a job target expression is interpreted.
type TargetType string

// Target expression types.
const (
	TargetGlob       TargetType = "glob"
	TargetPCRE       TargetType = "pcre"
	TargetList       TargetType = "list"
	TargetGrain      TargetType = "grain"
	TargetGrainPCRE  TargetType = "grain_pcre"
	TargetPillar     TargetType = "pillar"
	TargetPillarPCRE TargetType = "pillar_pcre"
	TargetNodeGroup  TargetType = "nodegroup"
	TargetRange      TargetType = "range"
	TargetCompound   TargetType = "compound"
	TargetIPCIDR     TargetType = "ipcidr"
)

// KeyState is one of the master's key acceptance buckets.
type KeyState string

// Key states as named by the master.
const (
	KeyStateAccepted KeyState = "minions"
	KeyStatePending  KeyState = "minions_pre"
	KeyStateRejected KeyState = "minions_rejected"
	KeyStateDenied   KeyState = "minions_denied"
)

// ValidKeyState reports whether s names a key bucket.
func ValidKeyState(s string) bool {
	switch KeyState(s) {
	case KeyStateAccepted, KeyStatePending, KeyStateRejected, KeyStateDenied:
		return true
	}
	return false
}

// MinionKey is one key record from the master's inventory.
type MinionKey struct {
	ID     string   `json:"id"`
	State  KeyState `json:"state"`
	Finger string   `json:"finger"`
}

// KnownIDs returns every minion id present in a key inventory.
func KnownIDs(keys []MinionKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.ID)
	}
	return out
}

// RunRequest describes one job submission.
type RunRequest struct {
	Client     ClientKind     `json:"client"`
	Target     string         `json:"tgt"`
	TargetType TargetType     `json:"tgtType"`
	Fun        string         `json:"fun"`
	Arg        []string       `json:"arg"`
	Kwarg      map[string]any `json:"kwarg"`
	BatchSize  string         `json:"batchSize"`
	Timeout    *int           `json:"timeout"`
}

// Client is the interface to the master's HTTP API. A nil token is only
// valid for Login.
type Client interface {
	// Login authenticates against the master and returns the issued token.
	Login(ctx context.Context, username, password string) (*Token, error)

	// Run submits a job and returns the master's raw result document.
	Run(ctx context.Context, token *Token, req RunRequest) (json.RawMessage, error)

	// ListKeys returns the master's key inventory with fingerprints.
	ListKeys(ctx context.Context, token *Token) ([]MinionKey, error)

	// AcceptKey moves a key from the given state to accepted.
	AcceptKey(ctx context.Context, token *Token, state KeyState, id string) error

	// RejectKey moves a key from the given state to rejected.
	RejectKey(ctx context.Context, token *Token, state KeyState, id string) error

	// DeleteKey removes a key entirely.
	DeleteKey(ctx context.Context, token *Token, state KeyState, id string) error

	// RefreshMinion asks the minion to re-report grains, pillars, and
	// packages. Results arrive asynchronously over the event bus.
	RefreshMinion(ctx context.Context, token *Token, minionID string) error

	// ListenEvents opens the master's live event feed. The stream stays open
	// until the context is cancelled, the connection drops, or Close is
	// called.
	ListenEvents(ctx context.Context, token *Token) (*EventStream, error)
}
