package salt

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStreamNext(t *testing.T) {
	t.Parallel()

	feed := strings.Join([]string{
		"retry: 400",
		"",
		"tag: salt/auth",
		`data: {"act": "pend", "id": "node-1"}`,
		"",
		"tag: salt/job/123/new",
		`data: {"jid": "123"}`,
		"",
	}, "\n")

	stream := NewEventStream(io.NopCloser(strings.NewReader(feed)))

	first, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "salt/auth", first.Tag)
	assert.JSONEq(t, `{"act": "pend", "id": "node-1"}`, first.Data)

	second, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "salt/job/123/new", second.Tag)

	_, err = stream.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestEventStreamSkipsDanglingFrames(t *testing.T) {
	t.Parallel()

	// A tag with no data line is dropped rather than emitted empty.
	feed := "tag: salt/orphan\n\ntag: salt/ok\ndata: {}\n\n"
	stream := NewEventStream(io.NopCloser(strings.NewReader(feed)))

	event, err := stream.Next()
	require.NoError(t, err)
	assert.Equal(t, "salt/ok", event.Tag)
}

func TestEventStreamEOFWithoutTrailingBlank(t *testing.T) {
	t.Parallel()

	stream := NewEventStream(io.NopCloser(strings.NewReader("tag: salt/x\ndata: {}")))

	// The final frame never terminates with a blank line, so the stream ends.
	_, err := stream.Next()
	assert.ErrorIs(t, err, io.EOF)
}
