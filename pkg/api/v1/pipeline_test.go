package v1

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resalt-dev/resalt/pkg/pipeline"
)

// The stream endpoint authenticates via the token query parameter, since
// EventSource cannot set headers, and relays published messages in SSE
// framing.
func TestPipelineStream(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedOperator(t, "alice", "p@ss", "")
	token := api.login(t, "alice", "p@ss", freshToken(time.Now()))

	srv := httptest.NewServer(api.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/pipeline?token="+token, nil)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Headers are written after the subscription is registered, so the
	// publish below cannot race the subscribe.
	api.broadcaster.Publish(pipeline.EventNewEvent, `{"id":"evt_1"}`)

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSuffix(line, "\n")
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	assert.Equal(t, []string{"event: new_event", `data: {"id":"evt_1"}`}, lines)

	// Disconnecting tears the subscription down.
	cancel()
	require.Eventually(t, func() bool {
		return api.broadcaster.Subscribers() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPipelineRequiresToken(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/pipeline", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
