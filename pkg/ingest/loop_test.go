package ingest

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/mock/gomock"

	"github.com/resalt-dev/resalt/pkg/minions"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/pipeline"
	"github.com/resalt-dev/resalt/pkg/salt"
	"github.com/resalt-dev/resalt/pkg/salt/mocks"
	"github.com/resalt-dev/resalt/pkg/sessions"
	"github.com/resalt-dev/resalt/pkg/storage"
	"github.com/resalt-dev/resalt/pkg/storage/memory"
)

const testStamp = "2024-05-01T12:00:00.123456"

// frame is one tag/data pair as observed on the bus.
type frame struct {
	tag  string
	data string
}

// feed renders frames in the master's server-sent event format and wraps
// them in a stream that ends with io.EOF.
func feed(frames ...frame) *salt.EventStream {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString("tag: " + f.tag + "\n")
		b.WriteString("data: " + f.data + "\n\n")
	}
	return salt.NewEventStream(io.NopCloser(strings.NewReader(b.String())))
}

type harness struct {
	loop   *Loop
	master *mocks.MockClient
	store  *memory.Store
	sub    *pipeline.Subscription
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)
	master := mocks.NewMockClient(ctrl)
	store := memory.New()
	broadcaster := pipeline.NewBroadcaster()
	sub := broadcaster.Subscribe("watcher")
	t.Cleanup(sub.Close)

	return &harness{
		loop:   New(master, store, minions.NewMaterializer(store), broadcaster, "svc-secret"),
		master: master,
		store:  store,
		sub:    sub,
	}
}

// run plays the frames through one full stream pass.
func (h *harness) run(t *testing.T, frames ...frame) {
	t.Helper()
	token := &salt.Token{Token: "tok-1", User: sessions.ServiceUsername, EAuth: "rest"}
	h.master.EXPECT().Login(gomock.Any(), sessions.ServiceUsername, "svc-secret").Return(token, nil)
	h.master.EXPECT().ListenEvents(gomock.Any(), token).Return(feed(frames...), nil)

	err := h.loop.stream(context.Background(), backoff.NewExponentialBackOff())
	require.ErrorIs(t, err, io.EOF)
}

// published drains the watcher subscription, grouping payloads by event name.
func (h *harness) published() map[string][]string {
	out := map[string][]string{}
	for {
		select {
		case msg := <-h.sub.Messages():
			out[msg.Event] = append(out[msg.Event], msg.Data)
		default:
			return out
		}
	}
}

func authFrame(minionID string, result bool) frame {
	return frame{
		tag:  "salt/auth",
		data: fmt.Sprintf(`{"tag": "salt/auth", "data": {"_stamp": "%s", "act": "accept", "id": "%s", "result": %t}}`, testStamp, minionID, result),
	}
}

func TestStreamRecordsAuthEvent(t *testing.T) {
	h := newHarness(t)
	h.run(t, authFrame("web-1", true))

	ctx := context.Background()
	minion, err := h.store.GetMinion(ctx, "web-1")
	require.NoError(t, err)
	want, err := models.ParseStamp(testStamp)
	require.NoError(t, err)
	assert.Equal(t, want, minion.LastSeen)
	assert.Nil(t, minion.Grains)

	events, err := h.store.ListEvents(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "salt/auth", events[0].Tag)
	assert.Equal(t, want, events[0].Timestamp)

	got := h.published()
	require.Len(t, got[pipeline.EventNewEvent], 1)
	require.Len(t, got[pipeline.EventUpdateMinion], 1)
	assert.Equal(t, "web-1", gjson.Get(got[pipeline.EventUpdateMinion][0], "id").String())

	assert.False(t, h.loop.Connected())
}

func TestStreamIgnoresFailedAuth(t *testing.T) {
	h := newHarness(t)
	h.run(t, authFrame("web-1", false))

	_, err := h.store.GetMinion(context.Background(), "web-1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	// The raw event is still kept for the audit trail.
	events, err := h.store.ListEvents(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)

	got := h.published()
	assert.Len(t, got[pipeline.EventNewEvent], 1)
	assert.Empty(t, got[pipeline.EventUpdateMinion])
}

func TestJobFlowMaterializesReturns(t *testing.T) {
	h := newHarness(t)
	jid := "20240501120000000000"
	h.run(t,
		frame{
			tag:  "salt/job/" + jid + "/new",
			data: fmt.Sprintf(`{"tag": "salt/job/%s/new", "data": {"_stamp": "%s", "jid": "%s", "fun": "grains.items", "user": "admin", "minions": ["web-1"]}}`, jid, testStamp, jid),
		},
		frame{
			tag:  "salt/job/" + jid + "/ret/web-1",
			data: fmt.Sprintf(`{"tag": "salt/job/%s/ret/web-1", "data": {"_stamp": "%s", "jid": "%s", "fun": "grains.items", "id": "web-1", "retcode": 0, "success": true, "return": {"os": "Debian", "os_family": "Debian"}}}`, jid, testStamp, jid),
		},
	)

	ctx := context.Background()
	job, err := h.store.GetJobByJID(ctx, jid)
	require.NoError(t, err)
	require.NotNil(t, job.User)
	assert.Equal(t, "admin", *job.User)
	require.NotNil(t, job.EventID)

	returns, err := h.store.ListJobReturns(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.Equal(t, "web-1", returns[0].MinionID)
	assert.Equal(t, jid, returns[0].JID)

	minion, err := h.store.GetMinion(ctx, "web-1")
	require.NoError(t, err)
	require.NotNil(t, minion.Grains)
	assert.Equal(t, "Debian", gjson.Get(*minion.Grains, "os").String())
	require.NotNil(t, minion.OSType)
	assert.Equal(t, "Debian", *minion.OSType)

	got := h.published()
	assert.Len(t, got[pipeline.EventNewEvent], 2)
	assert.Len(t, got[pipeline.EventNewJob], 1)
	assert.Len(t, got[pipeline.EventNewJobReturn], 1)
	assert.Len(t, got[pipeline.EventUpdateMinion], 1)
}

func TestReturnBeforeJobCreatesSkeleton(t *testing.T) {
	h := newHarness(t)
	jid := "20240501120000000000"
	h.run(t,
		frame{
			tag:  "salt/job/" + jid + "/ret/web-1",
			data: fmt.Sprintf(`{"tag": "salt/job/%s/ret/web-1", "data": {"_stamp": "%s", "jid": "%s", "fun": "test.ping", "id": "web-1", "retcode": 0, "return": true}}`, jid, testStamp, jid),
		},
		frame{
			tag:  "salt/job/" + jid + "/new",
			data: fmt.Sprintf(`{"tag": "salt/job/%s/new", "data": {"_stamp": "%s", "jid": "%s", "fun": "test.ping", "user": "admin"}}`, jid, testStamp, jid),
		},
	)

	ctx := context.Background()
	job, err := h.store.GetJobByJID(ctx, jid)
	require.NoError(t, err)
	assert.Nil(t, job.User)

	returns, err := h.store.ListJobReturns(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, returns, 1)

	// The late job/new replay is swallowed without a second announcement.
	got := h.published()
	assert.Empty(t, got[pipeline.EventNewJob])
	assert.Len(t, got[pipeline.EventNewJobReturn], 1)
}

func TestConformityGating(t *testing.T) {
	jid := "20240501120000000000"
	ret := `{"file_|-motd_|-/etc/motd_|-managed": {"result": true}, "pkg_|-nginx_|-nginx_|-installed": {"result": null}}`

	tests := []struct {
		name    string
		retcode int
		funArgs string
		fun     string
		tallied bool
	}{
		{name: "highstate", retcode: 0, funArgs: `[]`, fun: "state.highstate", tallied: true},
		{name: "bare apply", retcode: 0, funArgs: `[]`, fun: "state.apply", tallied: true},
		{name: "dry run", retcode: 0, funArgs: `["test=true"]`, fun: "state.apply", tallied: true},
		{name: "failed run", retcode: 1, funArgs: `[]`, fun: "state.apply", tallied: false},
		{name: "targeted sls", retcode: 0, funArgs: `["nginx"]`, fun: "state.apply", tallied: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.run(t, frame{
				tag: "salt/job/" + jid + "/ret/web-1",
				data: fmt.Sprintf(`{"tag": "salt/job/%s/ret/web-1", "data": {"_stamp": "%s", "jid": "%s", "fun": "%s", "fun_args": %s, "id": "web-1", "retcode": %d, "return": %s}}`,
					jid, testStamp, jid, tt.fun, tt.funArgs, tt.retcode, ret),
			})

			minion, err := h.store.GetMinion(context.Background(), "web-1")
			if !tt.tallied {
				require.ErrorIs(t, err, storage.ErrNotFound)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, minion.ConformitySuccess)
			assert.Equal(t, 1, *minion.ConformitySuccess)
			assert.Equal(t, 1, *minion.ConformityIncorrect)
			assert.Equal(t, 0, *minion.ConformityError)
			require.NotNil(t, minion.Conformity)
			assert.JSONEq(t, ret, *minion.Conformity)
		})
	}
}

func TestKeyChangePrunes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mat := minions.NewMaterializer(h.store)
	for _, id := range []string{"web-1", "web-2"} {
		_, err := mat.Upsert(ctx, id, models.Now(), minions.Fields{})
		require.NoError(t, err)
	}

	h.master.EXPECT().ListKeys(gomock.Any(), gomock.Any()).Return([]salt.MinionKey{
		{ID: "web-1", State: salt.KeyStateAccepted, Finger: "ab:cd"},
	}, nil)
	h.run(t, frame{
		tag:  "salt/key",
		data: fmt.Sprintf(`{"tag": "salt/key", "data": {"_stamp": "%s", "act": "delete", "id": "web-2", "result": true}}`, testStamp),
	})

	_, err := h.store.GetMinion(ctx, "web-2")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = h.store.GetMinion(ctx, "web-1")
	require.NoError(t, err)
}

func TestMalformedEventDoesNotStopStream(t *testing.T) {
	h := newHarness(t)
	fixed := time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)
	h.loop.now = func() time.Time { return fixed }

	h.run(t,
		frame{tag: "custom/noise", data: `this is not json`},
		authFrame("web-1", true),
	)

	ctx := context.Background()
	events, err := h.store.ListEvents(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Stampless events fall back to the local clock.
	var noise models.Event
	for _, ev := range events {
		if ev.Tag == "custom/noise" {
			noise = ev
		}
	}
	assert.Equal(t, models.NewTime(fixed), noise.Timestamp)

	_, err = h.store.GetMinion(ctx, "web-1")
	require.NoError(t, err)
}

func TestConnectedDuringStream(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.loop.Connected())

	// Dispatch runs while the feed is open, so a key event observes the
	// connected state from inside the stream.
	h.master.EXPECT().ListKeys(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ *salt.Token) ([]salt.MinionKey, error) {
			assert.True(t, h.loop.Connected())
			return nil, nil
		})
	h.run(t, frame{
		tag:  "salt/key",
		data: fmt.Sprintf(`{"tag": "salt/key", "data": {"_stamp": "%s", "act": "accept", "id": "web-1"}}`, testStamp),
	})

	assert.False(t, h.loop.Connected())
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.master.EXPECT().Login(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, fmt.Errorf("master unreachable"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.loop.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
