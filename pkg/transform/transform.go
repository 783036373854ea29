// Package transform maps raw Commonly push events into the canonical
// inbound-message shape. Classification is pure: the same event always
// yields the same outcome, and unrecognized event types are ignored rather
// than rejected so new server-side types never crash old bridges.
package transform

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Action is what the orchestrator should do with a classified event.
type Action int

const (
	// ActionIgnore yields no inbound message; the event is still
	// acknowledged when it carries an id.
	ActionIgnore Action = iota

	// ActionDispatch hands the built body to the host reply pipeline.
	ActionDispatch

	// ActionDirectPost posts the built body straight back to the pod with
	// no agent round-trip (summary requests).
	ActionDirectPost
)

const (
	// HeartbeatFallback is the body used for heartbeat events that carry
	// no explicit content.
	HeartbeatFallback = "System heartbeat from the Commonly scheduler. Check in on your pods and pending work."

	// StarterSentence frames an ensemble turn when this agent opens the
	// discussion.
	StarterSentence = "You are starting this discussion. Share your opening perspective on the topic."

	// ResponderSentence frames an ensemble turn when this agent responds
	// to prior turns.
	ResponderSentence = "It is your turn to respond. Build on the discussion so far."

	historyLimit  = 5
	keyPointLimit = 5
)

// Classification is the outcome of classifying one event.
type Classification struct {
	Action Action
	Body   string

	// Sender and pod metadata extracted from the payload, used to fill the
	// inbound context. Zero values when the payload carries none.
	Sender    models.Sender
	PodName   string
	MessageID string

	// ThreadID is set for thread-originated events; replies go back as
	// thread comments instead of pod messages.
	ThreadID          string
	ThreadStarterBody string

	// Ensemble is set for ensemble.turn events so the orchestrator can
	// report the first delivered reply as the ensemble response.
	Ensemble *models.EnsemblePayload
}

// Classify maps a raw event into a Classification. It never fails: malformed
// payloads and unknown types degrade to ActionIgnore.
func Classify(ev models.Event) Classification {
	switch ev.Type {
	case models.EventTypeChatMention, models.EventTypePodMessage, "":
		return classifyMessage(ev)
	case models.EventTypeThreadMention:
		return classifyThread(ev)
	case models.EventTypeSummaryRequest:
		return classifySummary(ev)
	case models.EventTypeEnsembleTurn:
		return classifyEnsemble(ev)
	case models.EventTypeHeartbeat:
		return classifyHeartbeat(ev)
	default:
		return Classification{Action: ActionIgnore}
	}
}

func classifyMessage(ev models.Event) Classification {
	var payload models.MessagePayload
	decodePayload(ev.Payload, &payload)

	body := strings.TrimSpace(payload.Content)
	if body == "" {
		return Classification{Action: ActionIgnore}
	}

	return Classification{
		Action:    ActionDispatch,
		Body:      body,
		Sender:    payload.Sender,
		PodName:   payload.PodName,
		MessageID: payload.MessageID,
	}
}

func classifyThread(ev models.Event) Classification {
	var payload models.ThreadPayload
	decodePayload(ev.Payload, &payload)

	comment := strings.TrimSpace(payload.Content)
	post := ""
	if payload.Post != nil {
		post = strings.TrimSpace(payload.Post.Content)
	}

	var body string
	switch {
	case post != "" && comment != "":
		body = fmt.Sprintf("Post: %s\n\nComment: %s", post, comment)
	case post != "":
		body = fmt.Sprintf("Post: %s", post)
	default:
		body = comment
	}

	if body == "" {
		return Classification{Action: ActionIgnore}
	}

	return Classification{
		Action:            ActionDispatch,
		Body:              body,
		Sender:            payload.Sender,
		PodName:           payload.PodName,
		ThreadID:          payload.ThreadID,
		ThreadStarterBody: post,
	}
}

func classifySummary(ev models.Event) Classification {
	var payload models.SummaryPayload
	decodePayload(ev.Payload, &payload)

	text := BuildSummaryText(payload)
	if text == "" {
		return Classification{Action: ActionIgnore}
	}

	return Classification{Action: ActionDirectPost, Body: text}
}

func classifyEnsemble(ev models.Event) Classification {
	var payload models.EnsemblePayload
	decodePayload(ev.Payload, &payload)

	return Classification{
		Action:   ActionDispatch,
		Body:     BuildEnsembleBody(payload),
		Ensemble: &payload,
	}
}

func classifyHeartbeat(ev models.Event) Classification {
	var payload models.MessagePayload
	decodePayload(ev.Payload, &payload)

	body := strings.TrimSpace(payload.Content)
	if body == "" {
		body = HeartbeatFallback
	}

	return Classification{Action: ActionDispatch, Body: body}
}

// BuildSummaryText formats a prebuilt server summary for direct posting back
// to the pod.
func BuildSummaryText(payload models.SummaryPayload) string {
	var b strings.Builder

	if payload.Title != "" {
		b.WriteString(payload.Title)
		b.WriteString("\n")
	}

	var meta []string
	if payload.Channel != "" {
		meta = append(meta, "#"+payload.Channel)
	}
	if payload.MessageCount > 0 {
		meta = append(meta, fmt.Sprintf("%d messages", payload.MessageCount))
	}
	if !payload.From.IsZero() && !payload.To.IsZero() {
		meta = append(meta, fmt.Sprintf("%s to %s",
			payload.From.Format(time.RFC3339), payload.To.Format(time.RFC3339)))
	}
	if len(meta) > 0 {
		b.WriteString(strings.Join(meta, " | "))
		b.WriteString("\n")
	}

	if payload.Body != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(payload.Body)
	}

	return strings.TrimSpace(b.String())
}

// BuildEnsembleBody synthesizes the agent-facing body for an ensemble turn:
// topic and turn framing, participant roster, then the most recent history
// and key points.
func BuildEnsembleBody(payload models.EnsemblePayload) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Ensemble discussion: %s (turn %d, round %d)\n",
		payload.Topic, payload.TurnNumber, payload.RoundNumber)

	if payload.IsStarter {
		b.WriteString(StarterSentence)
	} else {
		b.WriteString(ResponderSentence)
	}
	b.WriteString("\n")

	if len(payload.Participants) > 0 {
		roster := make([]string, 0, len(payload.Participants))
		for _, p := range payload.Participants {
			instance := p.InstanceID
			if instance == "" {
				instance = "default"
			}
			roster = append(roster, fmt.Sprintf("%s (%s:%s)", p.DisplayName, p.AgentType, instance))
		}
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(roster, ", "))
	}

	if history := tail(payload.History, historyLimit); len(history) > 0 {
		b.WriteString("\nRecent history:\n")
		for _, h := range history {
			fmt.Fprintf(&b, "- %s: %s\n", h.AgentType, h.Content)
		}
	}

	if points := tail(payload.KeyPoints, keyPointLimit); len(points) > 0 {
		b.WriteString("\nKey points:\n")
		for _, p := range points {
			fmt.Fprintf(&b, "- %s\n", p.Content)
		}
	}

	return strings.TrimSpace(b.String())
}

func tail[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func decodePayload(raw json.RawMessage, out any) {
	if len(raw) == 0 {
		return
	}
	// Malformed payloads degrade to zero values rather than failing the
	// event.
	_ = json.Unmarshal(raw, out)
}
