package models

import "time"

// Provider is the channel identifier the bridge reports to the host runtime.
const Provider = "commonly"

// AddressPrefix prefixes synthetic addressable identifiers handed to the
// host ("commonly:<id>").
const AddressPrefix = Provider + ":"

// InboundContext is the canonical normalized representation of one accepted
// event, handed to the host's reply pipeline. It is constructed once per
// event, passed by value, and not retained afterward.
type InboundContext struct {
	Body               string
	RawBody            string
	CommandBody        string
	From               string
	To                 string
	SessionKey         string
	AccountID          string
	ChatType           string
	ConversationLabel  string
	GroupSubject       string
	SenderName         string
	SenderID           string
	Surface            string
	MessageSid         string
	ThreadStarterBody  string
	MessageThreadID    string
	WasMentioned       bool
	OriginatingChannel string
	OriginatingTo      string
}

// ReplyPayload is one outbound reply block produced by the host's reply
// pipeline. An ensemble turn may produce several blocks, each delivered
// independently.
type ReplyPayload struct {
	Text     string
	MediaURL string
}

// AccountStatus is the externally observable state of one account bridge.
type AccountStatus struct {
	AccountID      string     `json:"account_id"`
	Running        bool       `json:"running"`
	Connected      bool       `json:"connected"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	StoppedAt      *time.Time `json:"stopped_at,omitempty"`
	LastInboundAt  *time.Time `json:"last_inbound_at,omitempty"`
	LastOutboundAt *time.Time `json:"last_outbound_at,omitempty"`
	LastEventAt    *time.Time `json:"last_event_at,omitempty"`
	LastError      string     `json:"last_error,omitempty"`
	LastDisconnect string     `json:"last_disconnect,omitempty"`
}
