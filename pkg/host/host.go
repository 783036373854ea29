// Package host declares the collaborator surface the bridge consumes from
// the chat-agent runtime. The runtime hands a Capabilities bundle to each
// bridge at start; nothing in this package talks to Commonly directly.
package host

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Route is the result of resolving an agent route for an inbound peer.
type Route struct {
	SessionKey     string
	AgentID        string
	MainSessionKey string
}

// RouteResolver resolves which agent session should handle a peer on a
// channel. Resolution is synchronous and must not perform network I/O.
type RouteResolver interface {
	ResolveAgentRoute(channel string, accountID string, peer string) (Route, error)
}

// SessionRecorder records inbound turns for later context assembly. Record
// failures are logged by callers and never block reply dispatch.
type SessionRecorder interface {
	RecordInbound(ctx context.Context, sessionKey string, msg models.InboundContext) error
}

// DeliveryFunc delivers one reply block back to the remote service. The
// dispatcher invokes it serially per event, once per generated block.
type DeliveryFunc func(ctx context.Context, reply models.ReplyPayload) error

// ReplyDispatcher runs the host reply pipeline for one inbound context. It
// may call deliver zero, one, or many times before returning.
type ReplyDispatcher interface {
	DispatchReply(ctx context.Context, msg models.InboundContext, deliver DeliveryFunc) error
}

// ContextFinalizer applies host-side transforms (directive stripping,
// prefix injection) to an inbound context before dispatch. The bridge treats
// it as an opaque text transform.
type ContextFinalizer interface {
	FinalizeInbound(ctx context.Context, msg models.InboundContext) (models.InboundContext, error)
}

// Capabilities bundles every host collaborator a bridge needs. It is passed
// explicitly at construction; there is no shared global runtime handle.
type Capabilities struct {
	Router    RouteResolver
	Sessions  SessionRecorder
	Finalizer ContextFinalizer
	Replies   ReplyDispatcher

	// ReplyPrefix is prepended to plain replies when non-empty. Ensemble
	// turn replies never carry the prefix.
	ReplyPrefix string
}
