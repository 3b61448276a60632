// Package ingest runs the long-lived consumer of the master event bus. It
// authenticates with the reserved service account, stores every observed
// event, materializes minion and job state from the tags it understands,
// and fans live notifications out through the pipeline.
package ingest

import (
	"context"
	"encoding/json"
	goerrors "errors"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tidwall/gjson"

	"github.com/resalt-dev/resalt/pkg/logger"
	"github.com/resalt-dev/resalt/pkg/minions"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/pipeline"
	"github.com/resalt-dev/resalt/pkg/salt"
	"github.com/resalt-dev/resalt/pkg/sessions"
	"github.com/resalt-dev/resalt/pkg/storage"
	"github.com/resalt-dev/resalt/pkg/telemetry"
)

// Reconnect backoff bounds.
const (
	reconnectInitial = time.Second
	reconnectMax     = 30 * time.Second
)

// Master tags and functions the dispatcher understands.
const (
	tagAuth = "salt/auth"
	tagKey  = "salt/key"

	funGrains    = "grains.items"
	funPillars   = "pillar.items"
	funPkgs      = "pkg.list_pkgs"
	funApply     = "state.apply"
	funHighstate = "state.highstate"
)

var (
	jobNewRe = regexp.MustCompile(`^salt/job/([0-9]+)/new$`)
	jobRetRe = regexp.MustCompile(`^salt/job/([0-9]+)/ret/(.+)$`)
)

// Loop is the event ingestion task. It cycles between disconnected,
// authenticating, and streaming; Connected reports the streaming state
// for the status endpoint.
type Loop struct {
	master       salt.Client
	store        storage.Store
	materializer *minions.Materializer
	broadcaster  *pipeline.Broadcaster
	serviceToken string
	connected    atomic.Bool
	now          func() time.Time
}

// New builds the ingestion loop. serviceToken authenticates the reserved
// service account against the master.
func New(master salt.Client, store storage.Store, materializer *minions.Materializer, broadcaster *pipeline.Broadcaster, serviceToken string) *Loop {
	return &Loop{
		master:       master,
		store:        store,
		materializer: materializer,
		broadcaster:  broadcaster,
		serviceToken: serviceToken,
		now:          time.Now,
	}
}

// Connected reports whether the loop is streaming master events.
func (l *Loop) Connected() bool {
	return l.connected.Load()
}

// Run drives the connect, stream, reconnect cycle until the context is
// cancelled. The loop never gives up on its own.
func (l *Loop) Run(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = reconnectInitial
	policy.MaxInterval = reconnectMax
	policy.Reset()

	for {
		err := l.stream(ctx, policy)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := policy.NextBackOff()
		logger.Warnf("Event stream lost: %v; reconnecting in %s", err, delay.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// stream authenticates, opens the feed, and dispatches events until the
// stream ends. The backoff resets once the feed is established.
func (l *Loop) stream(ctx context.Context, policy *backoff.ExponentialBackOff) error {
	token, err := l.master.Login(ctx, sessions.ServiceUsername, l.serviceToken)
	if err != nil {
		return err
	}

	stream, err := l.master.ListenEvents(ctx, token)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	l.connected.Store(true)
	defer l.connected.Store(false)
	policy.Reset()
	telemetry.StreamReconnects.Inc()
	logger.Infof("Master event stream established")

	for {
		event, err := stream.Next()
		if err != nil {
			return err
		}
		l.dispatch(ctx, token, event)
	}
}

// dispatch stores the raw event and applies its tag-specific effects.
// Handler failures are logged, never propagated: one bad event must not
// tear down the stream.
func (l *Loop) dispatch(ctx context.Context, token *salt.Token, raw *salt.Event) {
	inner := gjson.Get(raw.Data, "data")
	stamp := l.stampOf(inner)

	event := models.Event{
		ID:        models.NewEventID(),
		Timestamp: stamp,
		Tag:       raw.Tag,
		Data:      raw.Data,
	}
	if err := l.store.InsertEvent(ctx, event); err != nil {
		logger.Errorw("storing event", "tag", raw.Tag, "error", err)
		return
	}
	l.publishJSON(pipeline.EventNewEvent, event)

	switch {
	case raw.Tag == tagAuth:
		telemetry.EventsIngested.WithLabelValues("auth").Inc()
		l.handleAuth(ctx, inner, stamp)
	case raw.Tag == tagKey:
		telemetry.EventsIngested.WithLabelValues("key").Inc()
		l.handleKeyChange(ctx, token)
	case jobNewRe.MatchString(raw.Tag):
		telemetry.EventsIngested.WithLabelValues("job_new").Inc()
		l.handleJobNew(ctx, jobNewRe.FindStringSubmatch(raw.Tag)[1], inner, stamp, event.ID)
	case jobRetRe.MatchString(raw.Tag):
		telemetry.EventsIngested.WithLabelValues("job_return").Inc()
		m := jobRetRe.FindStringSubmatch(raw.Tag)
		l.handleJobReturn(ctx, m[1], m[2], inner, stamp, event.ID)
	default:
		telemetry.EventsIngested.WithLabelValues("other").Inc()
	}
}

// handleAuth marks the minion seen on a successful key authentication.
func (l *Loop) handleAuth(ctx context.Context, data gjson.Result, stamp models.Time) {
	if !data.Get("result").Bool() {
		return
	}
	id := data.Get("id").String()
	if id == "" {
		return
	}
	minion, err := l.materializer.Upsert(ctx, id, stamp, minions.Fields{})
	if err != nil {
		logger.Errorw("recording minion auth", "minion", id, "error", err)
		return
	}
	l.publishJSON(pipeline.EventUpdateMinion, minion)
}

// handleKeyChange re-reads the key inventory and prunes minions the
// master no longer knows in any bucket.
func (l *Loop) handleKeyChange(ctx context.Context, token *salt.Token) {
	keys, err := l.master.ListKeys(ctx, token)
	if err != nil {
		logger.Errorw("listing keys after key change", "error", err)
		return
	}
	n, err := l.materializer.Prune(ctx, salt.KnownIDs(keys))
	if err != nil {
		logger.Errorw("pruning minions", "error", err)
		return
	}
	if n > 0 {
		logger.Infof("Pruned %d minions no longer known to the master", n)
	}
}

func (l *Loop) handleJobNew(ctx context.Context, jid string, data gjson.Result, stamp models.Time, eventID string) {
	job := models.Job{
		ID:        models.NewJobID(),
		Timestamp: stamp,
		JID:       jid,
		EventID:   &eventID,
	}
	if user := data.Get("user").String(); user != "" {
		job.User = &user
	}
	if err := l.store.InsertJob(ctx, job); err != nil {
		// A replayed bus event for a jid already recorded is harmless.
		if !goerrors.Is(err, storage.ErrAlreadyExists) {
			logger.Errorw("storing job", "jid", jid, "error", err)
		}
		return
	}
	l.publishJSON(pipeline.EventNewJob, job)
}

func (l *Loop) handleJobReturn(ctx context.Context, jid, minionID string, data gjson.Result, stamp models.Time, eventID string) {
	job, err := l.ensureJob(ctx, jid, stamp)
	if err != nil {
		logger.Errorw("resolving job for return", "jid", jid, "error", err)
		return
	}

	ret := models.JobReturn{
		ID:        models.NewJobReturnID(),
		Timestamp: stamp,
		JID:       jid,
		JobID:     job.ID,
		EventID:   eventID,
		MinionID:  minionID,
	}
	if err := l.store.InsertJobReturn(ctx, ret); err != nil {
		logger.Errorw("storing job return", "jid", jid, "minion", minionID, "error", err)
		return
	}
	l.publishJSON(pipeline.EventNewJobReturn, ret)

	l.materializeReturn(ctx, minionID, data, stamp)
}

// ensureJob finds the job row for a jid, creating a skeleton when the
// job/new event was missed (stream gap or service restart).
func (l *Loop) ensureJob(ctx context.Context, jid string, stamp models.Time) (*models.Job, error) {
	job, err := l.store.GetJobByJID(ctx, jid)
	if err == nil {
		return job, nil
	}
	if !goerrors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	skeleton := models.Job{ID: models.NewJobID(), Timestamp: stamp, JID: jid}
	if err := l.store.InsertJob(ctx, skeleton); err != nil {
		if goerrors.Is(err, storage.ErrAlreadyExists) {
			return l.store.GetJobByJID(ctx, jid)
		}
		return nil, err
	}
	return &skeleton, nil
}

// materializeReturn applies the per-function minion effects of a job
// return.
func (l *Loop) materializeReturn(ctx context.Context, minionID string, data gjson.Result, stamp models.Time) {
	var fields minions.Fields

	switch fun := data.Get("fun").String(); fun {
	case funGrains:
		ret := data.Get("return")
		if !ret.IsObject() {
			return
		}
		doc := ret.Raw
		fields.Grains = &doc
	case funPillars:
		ret := data.Get("return")
		if !ret.IsObject() {
			return
		}
		doc := ret.Raw
		fields.Pillars = &doc
	case funPkgs:
		ret := data.Get("return")
		if !ret.IsObject() {
			return
		}
		doc := ret.Raw
		fields.Pkgs = &doc
	case funApply, funHighstate:
		if !conformityEligible(data) {
			return
		}
		conformity := minions.TallyConformity(data.Get("return").Raw)
		fields.Conformity = &conformity
	default:
		return
	}

	minion, err := l.materializer.Upsert(ctx, minionID, stamp, fields)
	if err != nil {
		logger.Errorw("materializing job return", "minion", minionID, "error", err)
		return
	}
	l.publishJSON(pipeline.EventUpdateMinion, minion)
}

// conformityEligible reports whether a state return reflects the full
// highstate: no arguments (or a bare test=true dry run), a non-failure
// retcode, and an object-shaped return.
func conformityEligible(data gjson.Result) bool {
	if data.Get("retcode").Int() == 1 {
		return false
	}
	if !data.Get("return").IsObject() {
		return false
	}
	args := data.Get("fun_args").Array()
	if len(args) == 0 {
		return true
	}
	return len(args) == 1 && args[0].String() == "test=true"
}

// stampOf parses the event's _stamp, falling back to the local clock for
// events that lack one.
func (l *Loop) stampOf(data gjson.Result) models.Time {
	raw := data.Get("_stamp").String()
	if raw != "" {
		if stamp, err := models.ParseStamp(raw); err == nil {
			return stamp
		}
		logger.Warnf("Unparseable event stamp %q; using local time", raw)
	}
	return models.NewTime(l.now())
}

func (l *Loop) publishJSON(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorw("serializing pipeline payload", "event", event, "error", err)
		return
	}
	l.broadcaster.Publish(event, string(data))
}
