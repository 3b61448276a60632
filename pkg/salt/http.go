package salt

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/resalt-dev/resalt/pkg/errors"
)

const (
	// eauthBackend is the master-side external auth module; the master
	// validates the credentials we send by calling back into this service.
	eauthBackend = "rest"

	unaryTimeout     = 30 * time.Second
	maxResponseBytes = 64 << 20
)

// APIClient is the HTTP implementation of Client against the master's
// CherryPy netapi.
type APIClient struct {
	baseURL string
	unary   *http.Client
	stream  *http.Client
}

var _ Client = (*APIClient)(nil)

// NewAPIClient builds a client for the master API at baseURL. skipVerify
// disables TLS certificate verification for self-signed master certs.
func NewAPIClient(baseURL string, skipVerify bool) *APIClient {
	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: skipVerify}, //nolint:gosec // operator opt-in for self-signed masters
	}
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		unary:   &http.Client{Transport: transport, Timeout: unaryTimeout},
		// The event feed stays open indefinitely, so no client timeout.
		stream: &http.Client{Transport: transport},
	}
}

// Login authenticates against the master. The session id of the calling
// operator is used as the password; the master's auth backend presents it
// back to this service for validation.
func (c *APIClient) Login(ctx context.Context, username, password string) (*Token, error) {
	payload := map[string]string{
		"username": username,
		"password": password,
		"eauth":    eauthBackend,
	}
	body, status, err := c.postJSON(ctx, "/login", nil, payload)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("reaching master login", err)
	}
	if status == http.StatusUnauthorized {
		return nil, errors.NewUnauthorizedError("master rejected credentials", nil)
	}
	if status != http.StatusOK {
		return nil, errors.NewUpstreamUnavailableError(fmt.Sprintf("master login returned status %d", status), nil)
	}

	ret := gjson.GetBytes(body, "return.0")
	token := &Token{
		Token:  ret.Get("token").String(),
		Start:  ret.Get("start").Float(),
		Expire: ret.Get("expire").Float(),
		User:   ret.Get("user").String(),
		EAuth:  ret.Get("eauth").String(),
	}
	if token.Token == "" {
		return nil, errors.NewUpstreamUnavailableError("master login returned no token", nil)
	}
	return token, nil
}

// Run submits a job and returns the master's raw result document.
func (c *APIClient) Run(ctx context.Context, token *Token, req RunRequest) (json.RawMessage, error) {
	if req.Fun == "" {
		return nil, errors.NewInvalidRequestError("fun is required", nil)
	}
	body, status, err := c.postJSON(ctx, "/", token, []map[string]any{buildRunPayload(req)})
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("reaching master", err)
	}
	if status == http.StatusUnauthorized {
		return nil, errors.NewUnauthorizedError("master rejected token", nil)
	}
	if status != http.StatusOK {
		return nil, errors.NewUpstreamUnavailableError(fmt.Sprintf("master returned status %d", status), nil)
	}

	ret := gjson.GetBytes(body, "return.0")
	if !ret.Exists() {
		return nil, errors.NewUpstreamUnavailableError("malformed master response", nil)
	}
	return json.RawMessage(ret.Raw), nil
}

// buildRunPayload maps a RunRequest onto the wire form the master expects
// for the selected execution client.
func buildRunPayload(req RunRequest) map[string]any {
	payload := map[string]any{
		"client": string(req.Client),
		"fun":    req.Fun,
	}
	if len(req.Arg) > 0 {
		payload["arg"] = req.Arg
	}
	if len(req.Kwarg) > 0 {
		payload["kwarg"] = req.Kwarg
	}

	targetType := req.TargetType
	if targetType == "" {
		targetType = TargetGlob
	}

	switch req.Client {
	case ClientLocal, ClientLocalAsync:
		payload["tgt"] = req.Target
		payload["tgt_type"] = string(targetType)
		if req.Timeout != nil {
			payload["timeout"] = *req.Timeout
		}
	case ClientLocalBatch:
		payload["tgt"] = req.Target
		payload["tgt_type"] = string(targetType)
		batch := req.BatchSize
		if batch == "" {
			batch = "10%"
		}
		payload["batch"] = batch
	case ClientRunner, ClientRunnerAsync, ClientWheel, ClientWheelAsync:
		// Runner and wheel jobs carry no target.
	}
	return payload
}

// ListKeys returns the master's key inventory via the wheel client. The
// finger call reports fingerprints grouped by acceptance bucket; the
// master's own "local" keys are not minions and are skipped.
func (c *APIClient) ListKeys(ctx context.Context, token *Token) ([]MinionKey, error) {
	raw, err := c.Run(ctx, token, RunRequest{
		Client: ClientWheel,
		Fun:    "key.finger",
		Arg:    []string{"*"},
	})
	if err != nil {
		return nil, err
	}
	data := gjson.GetBytes(raw, "data.return")
	if !data.Exists() {
		return nil, errors.NewUpstreamUnavailableError("malformed key list response", nil)
	}

	keys := []MinionKey{}
	data.ForEach(func(bucket, fingers gjson.Result) bool {
		state := bucket.String()
		if !ValidKeyState(state) {
			return true
		}
		fingers.ForEach(func(id, finger gjson.Result) bool {
			keys = append(keys, MinionKey{
				ID:     id.String(),
				State:  KeyState(state),
				Finger: finger.String(),
			})
			return true
		})
		return true
	})
	return keys, nil
}

// AcceptKey moves a key to the accepted state.
func (c *APIClient) AcceptKey(ctx context.Context, token *Token, state KeyState, id string) error {
	kwarg := map[string]any{}
	if state == KeyStateRejected {
		kwarg["include_rejected"] = true
	}
	if state == KeyStateDenied {
		kwarg["include_denied"] = true
	}
	_, err := c.Run(ctx, token, RunRequest{
		Client: ClientWheel,
		Fun:    "key.accept",
		Arg:    []string{id},
		Kwarg:  kwarg,
	})
	return err
}

// RejectKey moves a key to the rejected state.
func (c *APIClient) RejectKey(ctx context.Context, token *Token, state KeyState, id string) error {
	kwarg := map[string]any{}
	if state == KeyStateAccepted {
		kwarg["include_accepted"] = true
	}
	if state == KeyStateDenied {
		kwarg["include_denied"] = true
	}
	_, err := c.Run(ctx, token, RunRequest{
		Client: ClientWheel,
		Fun:    "key.reject",
		Arg:    []string{id},
		Kwarg:  kwarg,
	})
	return err
}

// DeleteKey removes a key in any state.
func (c *APIClient) DeleteKey(ctx context.Context, token *Token, _ KeyState, id string) error {
	_, err := c.Run(ctx, token, RunRequest{
		Client: ClientWheel,
		Fun:    "key.delete",
		Arg:    []string{id},
	})
	return err
}

// refreshFuns are the reporting functions a refresh asks a minion to run.
// Results come back asynchronously over the event bus and are materialized
// by the ingestion loop.
var refreshFuns = []string{"grains.items", "pillar.items", "pkg.list_pkgs"}

// RefreshMinion submits async report jobs for one minion.
func (c *APIClient) RefreshMinion(ctx context.Context, token *Token, minionID string) error {
	for _, fun := range refreshFuns {
		_, err := c.Run(ctx, token, RunRequest{
			Client:     ClientLocalAsync,
			Target:     minionID,
			TargetType: TargetList,
			Fun:        fun,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ListenEvents opens the master's live event feed.
func (c *APIClient) ListenEvents(ctx context.Context, token *Token) (*EventStream, error) {
	endpoint := fmt.Sprintf("%s/events?salt_token=%s", c.baseURL, url.QueryEscape(token.Token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewInternalError("building event feed request", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, errors.NewUpstreamUnavailableError("connecting to master event feed", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		return nil, errors.NewUnauthorizedError("master rejected token for event feed", nil)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, errors.NewUpstreamUnavailableError(fmt.Sprintf("master event feed returned status %d", resp.StatusCode), nil)
	}
	return NewEventStream(resp.Body), nil
}

func (c *APIClient) postJSON(ctx context.Context, path string, token *Token, payload any) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("serializing request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != nil {
		req.Header.Set("X-Auth-Token", token.Token)
	}

	resp, err := c.unary.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	return body, resp.StatusCode, nil
}
