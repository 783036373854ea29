package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func event(t *testing.T, eventType string, payload any) models.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return models.Event{ID: "evt-1", Type: eventType, PodID: "pod-1", Payload: raw}
}

func TestClassify_ChatMention(t *testing.T) {
	ev := event(t, models.EventTypeChatMention, models.MessagePayload{
		Content:   "  hello agent  ",
		MessageID: "msg-9",
		PodName:   "general",
		Sender:    models.Sender{ID: "user-1", Name: "Dana"},
	})

	cls := Classify(ev)

	assert.Equal(t, ActionDispatch, cls.Action)
	assert.Equal(t, "hello agent", cls.Body)
	assert.Equal(t, "user-1", cls.Sender.ID)
	assert.Equal(t, "Dana", cls.Sender.Name)
	assert.Equal(t, "general", cls.PodName)
	assert.Equal(t, "msg-9", cls.MessageID)
	assert.Empty(t, cls.ThreadID)
	assert.Nil(t, cls.Ensemble)
}

func TestClassify_EmptyBodyIsIgnored(t *testing.T) {
	ev := event(t, models.EventTypePodMessage, models.MessagePayload{Content: "   "})

	cls := Classify(ev)

	assert.Equal(t, ActionIgnore, cls.Action)
}

func TestClassify_MissingTypeTreatedAsMessage(t *testing.T) {
	ev := event(t, "", models.MessagePayload{Content: "plain"})

	cls := Classify(ev)

	assert.Equal(t, ActionDispatch, cls.Action)
	assert.Equal(t, "plain", cls.Body)
}

func TestClassify_UnknownTypeIsIgnored(t *testing.T) {
	ev := event(t, "pods.archived", map[string]any{"content": "whatever"})

	cls := Classify(ev)

	assert.Equal(t, ActionIgnore, cls.Action)
}

func TestClassify_MalformedPayloadIsIgnored(t *testing.T) {
	ev := models.Event{Type: models.EventTypeChatMention, PodID: "pod-1", Payload: json.RawMessage(`{not json`)}

	cls := Classify(ev)

	assert.Equal(t, ActionIgnore, cls.Action)
}

func TestClassify_ThreadMention(t *testing.T) {
	t.Run("PostAndComment", func(t *testing.T) {
		ev := event(t, models.EventTypeThreadMention, map[string]any{
			"content":  "I agree",
			"threadId": "thr-1",
			"post":     map[string]any{"content": "Should we ship?"},
		})

		cls := Classify(ev)

		assert.Equal(t, ActionDispatch, cls.Action)
		assert.Equal(t, "Post: Should we ship?\n\nComment: I agree", cls.Body)
		assert.Equal(t, "thr-1", cls.ThreadID)
		assert.Equal(t, "Should we ship?", cls.ThreadStarterBody)
	})

	t.Run("PostOnly", func(t *testing.T) {
		ev := event(t, models.EventTypeThreadMention, map[string]any{
			"threadId": "thr-2",
			"post":     map[string]any{"content": "Kickoff"},
		})

		cls := Classify(ev)

		assert.Equal(t, ActionDispatch, cls.Action)
		assert.Equal(t, "Post: Kickoff", cls.Body)
	})

	t.Run("CommentOnly", func(t *testing.T) {
		ev := event(t, models.EventTypeThreadMention, map[string]any{
			"content":  "just the comment",
			"threadId": "thr-3",
		})

		cls := Classify(ev)

		assert.Equal(t, ActionDispatch, cls.Action)
		assert.Equal(t, "just the comment", cls.Body)
		assert.Empty(t, cls.ThreadStarterBody)
	})

	t.Run("Empty", func(t *testing.T) {
		ev := event(t, models.EventTypeThreadMention, map[string]any{"threadId": "thr-4"})

		cls := Classify(ev)

		assert.Equal(t, ActionIgnore, cls.Action)
	})
}

func TestClassify_SummaryRequestIsDirectPost(t *testing.T) {
	ev := event(t, models.EventTypeSummaryRequest, models.SummaryPayload{
		Title:        "Daily summary",
		Channel:      "general",
		MessageCount: 12,
		Body:         "Lots happened.",
	})

	cls := Classify(ev)

	assert.Equal(t, ActionDirectPost, cls.Action)
	assert.Equal(t, "Daily summary\n#general | 12 messages\n\nLots happened.", cls.Body)
}

func TestClassify_EmptySummaryIsIgnored(t *testing.T) {
	ev := event(t, models.EventTypeSummaryRequest, models.SummaryPayload{})

	cls := Classify(ev)

	assert.Equal(t, ActionIgnore, cls.Action)
}

func TestClassify_Heartbeat(t *testing.T) {
	t.Run("FallbackBody", func(t *testing.T) {
		ev := event(t, models.EventTypeHeartbeat, models.MessagePayload{})

		cls := Classify(ev)

		assert.Equal(t, ActionDispatch, cls.Action)
		assert.Equal(t, HeartbeatFallback, cls.Body)
	})

	t.Run("ExplicitBody", func(t *testing.T) {
		ev := event(t, models.EventTypeHeartbeat, models.MessagePayload{Content: "check the release pod"})

		cls := Classify(ev)

		assert.Equal(t, ActionDispatch, cls.Action)
		assert.Equal(t, "check the release pod", cls.Body)
	})
}

func TestClassify_EnsembleTurn(t *testing.T) {
	ev := event(t, models.EventTypeEnsembleTurn, models.EnsemblePayload{
		EnsembleID:  "ens-1",
		Topic:       "release readiness",
		TurnNumber:  2,
		RoundNumber: 1,
		Participants: []models.EnsembleParticipant{
			{DisplayName: "Scout", AgentType: "researcher", InstanceID: "a"},
			{DisplayName: "Critic", AgentType: "reviewer"},
		},
		History: []models.EnsembleHistoryEntry{
			{AgentType: "researcher", Content: "metrics look stable"},
		},
		KeyPoints: []models.EnsembleKeyPoint{
			{Content: "no open incidents"},
		},
	})

	cls := Classify(ev)

	require.Equal(t, ActionDispatch, cls.Action)
	require.NotNil(t, cls.Ensemble)
	assert.Equal(t, "ens-1", cls.Ensemble.EnsembleID)

	assert.Contains(t, cls.Body, "Ensemble discussion: release readiness (turn 2, round 1)")
	assert.Contains(t, cls.Body, ResponderSentence)
	assert.Contains(t, cls.Body, "Participants: Scout (researcher:a), Critic (reviewer:default)")
	assert.Contains(t, cls.Body, "Recent history:\n- researcher: metrics look stable")
	assert.Contains(t, cls.Body, "Key points:\n- no open incidents")
}

func TestClassify_EnsembleStarter(t *testing.T) {
	ev := event(t, models.EventTypeEnsembleTurn, models.EnsemblePayload{
		EnsembleID: "ens-2",
		Topic:      "roadmap",
		TurnNumber: 1,
		IsStarter:  true,
	})

	cls := Classify(ev)

	assert.Contains(t, cls.Body, StarterSentence)
	assert.NotContains(t, cls.Body, "Participants:")
	assert.NotContains(t, cls.Body, "Recent history:")
}

func TestBuildEnsembleBody_TruncatesHistoryAndKeyPoints(t *testing.T) {
	payload := models.EnsemblePayload{EnsembleID: "ens-3", Topic: "t"}
	for i := 0; i < 8; i++ {
		payload.History = append(payload.History, models.EnsembleHistoryEntry{
			AgentType: "agent",
			Content:   string(rune('a' + i)),
		})
		payload.KeyPoints = append(payload.KeyPoints, models.EnsembleKeyPoint{
			Content: string(rune('a' + i)),
		})
	}

	body := BuildEnsembleBody(payload)

	// Only the newest five entries survive.
	assert.NotContains(t, body, "- agent: c")
	assert.Contains(t, body, "- agent: d")
	assert.Contains(t, body, "- agent: h")
}

func TestBuildSummaryText_BodyOnly(t *testing.T) {
	text := BuildSummaryText(models.SummaryPayload{Body: "just the body"})

	assert.Equal(t, "just the body", text)
}
