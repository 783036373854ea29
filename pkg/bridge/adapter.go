// Package bridge orchestrates one Commonly account: it wires the push
// connection to the host's routing, session and reply subsystems, and owns
// the per-event lifecycle from classification through delivery and
// acknowledgment.
package bridge

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	appctx "github.com/Ramsey-B/stem/pkg/context"
	"github.com/Ramsey-B/stem/pkg/tracing"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/commonly"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/host"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/socket"
	"github.com/Ramsey-B/fern/pkg/transform"
)

// connector abstracts the push connection so tests can substitute a fake.
type connector interface {
	OnStatus(handler socket.StatusHandler)
	Connect(ctx context.Context) error
	Disconnect()
	Subscribe(podIDs []string) error
	Unsubscribe(podIDs []string) error
	IsConnected() bool
}

// remoteAPI abstracts the Commonly calls the adapter performs per event.
type remoteAPI interface {
	PostMessage(ctx context.Context, podID string, content string, metadata map[string]any) (*commonly.PostedMessage, error)
	PostThreadComment(ctx context.Context, threadID string, content string, metadata map[string]any) (*commonly.PostedMessage, error)
	AckEvent(ctx context.Context, eventID string) error
	FetchPendingEvents(ctx context.Context) ([]models.Event, error)
	ReportEnsembleResponse(ctx context.Context, podID string, ensembleID string, messageID string, content string) error
}

// Adapter bridges one account. Create with NewAdapter, run with Start, tear
// down with Stop. Events may be processed concurrently: the transport hands
// them off back-to-back and each handler suspends on network I/O.
type Adapter struct {
	account models.Account
	client  remoteAPI
	conn    connector
	caps    host.Capabilities
	mirror  *events.Emitter
	logger  ectologger.Logger

	runCtx context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	status models.AccountStatus
}

// NewAdapter wires an adapter from its collaborators. The mirror may be nil
// when Kafka mirroring is disabled.
func NewAdapter(account models.Account, client remoteAPI, conn connector, caps host.Capabilities, mirror *events.Emitter, logger ectologger.Logger) *Adapter {
	return &Adapter{
		account: account,
		client:  client,
		conn:    conn,
		caps:    caps,
		mirror:  mirror,
		logger:  logger,
		status:  models.AccountStatus{AccountID: account.AccountID},
	}
}

// Start connects the push channel and subscribes the account's configured
// pods. The adapter is Running once Start returns nil.
func (a *Adapter) Start(ctx context.Context) error {
	a.runCtx, a.cancel = context.WithCancel(context.Background())

	a.conn.OnStatus(a.onStatus)

	if err := a.conn.Connect(ctx); err != nil {
		a.cancel()
		return err
	}

	if len(a.account.PodIDs) > 0 {
		if err := a.conn.Subscribe(a.account.PodIDs); err != nil {
			a.logger.WithContext(ctx).WithError(err).Warnf("Initial subscribe failed for account %s", a.account.AccountID)
		}
	}

	now := time.Now()
	a.mu.Lock()
	a.status.Running = true
	a.status.StartedAt = &now
	a.mu.Unlock()

	a.logger.WithContext(ctx).Infof("Bridge started for account %s (%d pods)", a.account.AccountID, len(a.account.PodIDs))
	return nil
}

// Stop requests shutdown: new events are dropped immediately, the socket is
// torn down, and status is updated. In-flight dispatches are not forcibly
// cancelled.
func (a *Adapter) Stop(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	a.conn.Disconnect()

	now := time.Now()
	a.mu.Lock()
	a.status.Running = false
	a.status.Connected = false
	a.status.StoppedAt = &now
	a.mu.Unlock()

	a.logger.WithContext(ctx).Infof("Bridge stopped for account %s", a.account.AccountID)
}

// AccountID returns the id of the account this adapter bridges.
func (a *Adapter) AccountID() string {
	return a.account.AccountID
}

// SubscribePods adds pods to the account's subscription set.
func (a *Adapter) SubscribePods(podIDs []string) error {
	return a.conn.Subscribe(podIDs)
}

// UnsubscribePods removes pods from the account's subscription set.
func (a *Adapter) UnsubscribePods(podIDs []string) error {
	return a.conn.Unsubscribe(podIDs)
}

// FetchPending retrieves events queued for this account on the remote side.
func (a *Adapter) FetchPending(ctx context.Context) ([]models.Event, error) {
	return a.client.FetchPendingEvents(ctx)
}

// Status returns a snapshot of the adapter's observable state.
func (a *Adapter) Status() models.AccountStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *Adapter) onStatus(status socket.Status) {
	a.mu.Lock()
	a.status.Connected = status.Connected
	if status.Error != "" {
		a.status.LastError = status.Error
	}
	if status.Reason != "" {
		a.status.LastDisconnect = status.Reason
	}
	a.mu.Unlock()
}

// HandleEvent is the push-channel event callback. Each event is processed in
// its own goroutine so back-to-back events interleave rather than queue
// behind one another's network calls.
func (a *Adapter) HandleEvent(event models.Event) {
	go a.processEvent(event)
}

func (a *Adapter) processEvent(event models.Event) {
	// Once shutdown is requested no new work begins; the event is dropped
	// with no status update, reply, or ack.
	if a.runCtx.Err() != nil {
		metrics.RecordEvent(a.account.AccountID, event.Type, "dropped")
		return
	}

	ctx := appctx.SetRequestID(a.runCtx, uuid.New().String())
	ctx, span := tracing.StartSpan(ctx, "bridge.Adapter.processEvent")
	defer span.End()

	metrics.EventHandlersInFlight.Inc()
	defer metrics.EventHandlersInFlight.Dec()

	now := time.Now()
	a.mu.Lock()
	a.status.LastInboundAt = &now
	a.status.LastEventAt = &now
	a.mu.Unlock()

	log := a.logger.WithContext(ctx).WithFields(map[string]any{
		"account_id": a.account.AccountID,
		"event_type": event.Type,
		"pod_id":     event.PodID,
	})

	cls := transform.Classify(event)

	switch cls.Action {
	case transform.ActionIgnore:
		log.Debugf("Ignoring event %s", event.ID)
		metrics.RecordEvent(a.account.AccountID, event.Type, "ignored")
		a.ack(ctx, event)

	case transform.ActionDirectPost:
		if _, err := a.client.PostMessage(ctx, event.PodID, cls.Body, nil); err != nil {
			log.WithError(err).Error("Failed to post summary back to pod")
		} else {
			a.markOutbound()
		}
		metrics.RecordEvent(a.account.AccountID, event.Type, "direct_post")
		a.ack(ctx, event)

	case transform.ActionDispatch:
		metrics.RecordEvent(a.account.AccountID, event.Type, "dispatched")
		a.dispatch(ctx, event, cls, log)
	}
}

// dispatch runs the full reply pipeline for one classified event, then
// acknowledges the event exactly once, regardless of how many reply blocks
// were delivered.
func (a *Adapter) dispatch(ctx context.Context, event models.Event, cls transform.Classification, log ectologger.Logger) {
	defer a.ack(ctx, event)

	route, err := a.caps.Router.ResolveAgentRoute(models.Provider, a.account.AccountID, models.AddressPrefix+event.PodID)
	if err != nil {
		log.WithError(err).Error("Failed to resolve agent route")
		return
	}

	msg := a.buildInbound(event, cls, route)

	if a.caps.Finalizer != nil {
		finalized, err := a.caps.Finalizer.FinalizeInbound(ctx, msg)
		if err != nil {
			log.WithError(err).Warn("Inbound finalization failed, dispatching unfinalized context")
		} else {
			msg = finalized
		}
	}

	if a.caps.Sessions != nil {
		if err := a.caps.Sessions.RecordInbound(ctx, route.SessionKey, msg); err != nil {
			// Session recording never blocks reply dispatch.
			log.WithError(err).Warn("Failed to record inbound turn")
		}
	}

	if a.mirror != nil {
		a.mirror.EmitInbound(ctx, a.account.AccountID, event, msg.Body)
	}

	// One-shot flag local to this event's closure: the first successfully
	// posted block of an ensemble turn is reported as the ensemble
	// response, and only that one.
	reported := false

	deliver := func(ctx context.Context, reply models.ReplyPayload) error {
		return a.deliver(ctx, event, cls, reply, &reported, log)
	}

	if err := a.caps.Replies.DispatchReply(ctx, msg, deliver); err != nil {
		log.WithError(err).Error("Reply dispatch failed")
	}
}

// deliver sends one reply block: a thread comment for thread-originated
// events, a pod message otherwise. Empty blocks are a no-op. Post failures
// are logged and swallowed so later blocks still get delivered.
func (a *Adapter) deliver(ctx context.Context, event models.Event, cls transform.Classification, reply models.ReplyPayload, reported *bool, log ectologger.Logger) error {
	text := strings.TrimSpace(reply.Text)
	if reply.MediaURL != "" {
		if text != "" {
			text = text + "\n" + reply.MediaURL
		} else {
			text = reply.MediaURL
		}
	}
	if text == "" {
		return nil
	}

	// The configured reply prefix never applies to ensemble turns.
	if cls.Ensemble == nil && a.caps.ReplyPrefix != "" {
		text = a.caps.ReplyPrefix + text
	}

	kind := "message"
	var posted *commonly.PostedMessage
	var err error

	if cls.ThreadID != "" {
		kind = "thread_comment"
		posted, err = a.client.PostThreadComment(ctx, cls.ThreadID, text, map[string]any{"eventId": event.ID})
	} else {
		posted, err = a.client.PostMessage(ctx, event.PodID, text, map[string]any{"eventId": event.ID})
	}

	if err != nil {
		// A failed block must not abort the blocks that follow it, nor the
		// final acknowledgment.
		log.WithError(err).Errorf("Failed to deliver reply block (%s)", kind)
		metrics.RecordDelivery(a.account.AccountID, kind, "error")
		return nil
	}

	metrics.RecordDelivery(a.account.AccountID, kind, "ok")
	a.markOutbound()

	if a.mirror != nil {
		a.mirror.EmitDelivery(ctx, a.account.AccountID, event, kind, posted.ID)
	}

	if cls.Ensemble != nil && !*reported {
		*reported = true
		_ = a.client.ReportEnsembleResponse(ctx, event.PodID, cls.Ensemble.EnsembleID, posted.ID, text)
	}

	return nil
}

func (a *Adapter) buildInbound(event models.Event, cls transform.Classification, route host.Route) models.InboundContext {
	senderID := cls.Sender.ID
	if senderID == "" {
		senderID = event.PodID
	}

	agent := a.account.AgentName
	if agent == "" {
		agent = a.account.AccountID
	}
	if event.AgentName != "" {
		agent = event.AgentName
	}

	label := cls.PodName
	if label == "" {
		label = event.PodID
	}

	sid := cls.MessageID
	if sid == "" {
		sid = event.ID
	}

	return models.InboundContext{
		Body:               cls.Body,
		RawBody:            cls.Body,
		CommandBody:        cls.Body,
		From:               models.AddressPrefix + senderID,
		To:                 models.AddressPrefix + agent,
		SessionKey:         route.SessionKey,
		AccountID:          a.account.AccountID,
		ChatType:           "group",
		ConversationLabel:  label,
		GroupSubject:       label,
		SenderName:         cls.Sender.Name,
		SenderID:           cls.Sender.ID,
		Surface:            models.Provider,
		MessageSid:         sid,
		ThreadStarterBody:  cls.ThreadStarterBody,
		MessageThreadID:    cls.ThreadID,
		WasMentioned:       true,
		OriginatingChannel: models.Provider,
		OriginatingTo:      models.AddressPrefix + event.PodID,
	}
}

// ack best-effort acknowledges the event. Ack failures are logged and never
// propagate: the dispatch already happened and must not be rolled back or
// re-queued.
func (a *Adapter) ack(ctx context.Context, event models.Event) {
	if event.ID == "" {
		return
	}
	if err := a.client.AckEvent(ctx, event.ID); err != nil {
		a.logger.WithContext(ctx).WithError(err).Warnf("Failed to ack event %s", event.ID)
		metrics.RecordAck(a.account.AccountID, "error")
		return
	}
	metrics.RecordAck(a.account.AccountID, "ok")
}

func (a *Adapter) markOutbound() {
	now := time.Now()
	a.mu.Lock()
	a.status.LastOutboundAt = &now
	a.mu.Unlock()
}
