package models

import (
	"encoding/json"
	"time"
)

// Recognized event types pushed by Commonly. The type field is an open
// string enum: the server may add new values at any time, so consumers must
// treat unrecognized values as a default/ignore case, never an error.
const (
	EventTypeChatMention    = "chat.mention"
	EventTypeThreadMention  = "thread.mention"
	EventTypeSummaryRequest = "summary.request"
	EventTypeEnsembleTurn   = "ensemble.turn"
	EventTypePodMessage     = "pod.message"
	EventTypeHeartbeat      = "heartbeat"
)

// Event is one push notification from Commonly. Events are ephemeral: they
// are received once, processed, and best-effort acknowledged by id. Locally
// synthesized events carry no id and are never acknowledged.
type Event struct {
	ID         string          `json:"id,omitempty"`
	Type       string          `json:"type"`
	PodID      string          `json:"podId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	AgentName  string          `json:"agentName,omitempty"`
	InstanceID string          `json:"instanceId,omitempty"`
	CreatedAt  time.Time       `json:"createdAt,omitempty"`
}

// Sender identifies the author of a pod message or comment.
type Sender struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// MessagePayload is the payload shape for chat.mention, pod.message and
// heartbeat events.
type MessagePayload struct {
	Content   string `json:"content,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	PodName   string `json:"podName,omitempty"`
	Sender    Sender `json:"sender,omitempty"`
}

// ThreadPayload is the payload shape for thread.mention events. Post carries
// the thread-starting post when the server includes it.
type ThreadPayload struct {
	Content  string `json:"content,omitempty"`
	ThreadID string `json:"threadId"`
	PodName  string `json:"podName,omitempty"`
	Sender   Sender `json:"sender,omitempty"`
	Post     *struct {
		Content string `json:"content,omitempty"`
	} `json:"post,omitempty"`
}

// SummaryPayload is the payload shape for summary.request events. The fields
// are prebuilt by the server; the bridge formats and posts them back to the
// pod without an agent round-trip.
type SummaryPayload struct {
	Title        string    `json:"title,omitempty"`
	Channel      string    `json:"channel,omitempty"`
	MessageCount int       `json:"messageCount,omitempty"`
	From         time.Time `json:"from,omitempty"`
	To           time.Time `json:"to,omitempty"`
	Body         string    `json:"body,omitempty"`
}

// EnsembleParticipant is one member of an ensemble discussion roster.
type EnsembleParticipant struct {
	DisplayName string `json:"displayName,omitempty"`
	AgentType   string `json:"agentType,omitempty"`
	InstanceID  string `json:"instanceId,omitempty"`
}

// EnsembleHistoryEntry is one prior contribution in an ensemble discussion.
type EnsembleHistoryEntry struct {
	AgentType string `json:"agentType,omitempty"`
	Content   string `json:"content,omitempty"`
}

// EnsembleKeyPoint is one running key point of an ensemble discussion.
type EnsembleKeyPoint struct {
	Content string `json:"content,omitempty"`
}

// EnsemblePayload is the payload shape for ensemble.turn events.
type EnsemblePayload struct {
	EnsembleID   string                 `json:"ensembleId"`
	Topic        string                 `json:"topic,omitempty"`
	TurnNumber   int                    `json:"turnNumber,omitempty"`
	RoundNumber  int                    `json:"roundNumber,omitempty"`
	IsStarter    bool                   `json:"isStarter,omitempty"`
	Participants []EnsembleParticipant  `json:"participants,omitempty"`
	History      []EnsembleHistoryEntry `json:"history,omitempty"`
	KeyPoints    []EnsembleKeyPoint     `json:"keyPoints,omitempty"`
}
