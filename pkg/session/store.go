// Package session persists inbound transcript entries to Redis so operators
// can inspect recent bridge traffic per session. The store implements
// host.SessionRecorder; write failures are surfaced to the caller, which
// logs and continues.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
)

const (
	keyPrefix = "fern:session:"

	// defaultMaxEntries caps the per-session transcript length.
	defaultMaxEntries = 200

	// defaultTTL expires idle transcripts.
	defaultTTL = 7 * 24 * time.Hour
)

// Entry is one recorded inbound turn.
type Entry struct {
	Body       string    `json:"body"`
	From       string    `json:"from"`
	SenderName string    `json:"sender_name,omitempty"`
	MessageSid string    `json:"message_sid,omitempty"`
	Surface    string    `json:"surface,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store records session transcripts in Redis lists keyed by session key.
type Store struct {
	client     *redis.Client
	logger     ectologger.Logger
	maxEntries int64
	ttl        time.Duration
}

// NewStore creates a transcript store with default retention.
func NewStore(client *redis.Client, logger ectologger.Logger) *Store {
	return &Store{
		client:     client,
		logger:     logger,
		maxEntries: defaultMaxEntries,
		ttl:        defaultTTL,
	}
}

// RecordInbound appends one inbound turn to the session transcript and trims
// it to the retention cap.
func (s *Store) RecordInbound(ctx context.Context, sessionKey string, msg models.InboundContext) error {
	entry := Entry{
		Body:       msg.Body,
		From:       msg.From,
		SenderName: msg.SenderName,
		MessageSid: msg.MessageSid,
		Surface:    msg.Surface,
		RecordedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal transcript entry: %w", err)
	}

	key := keyPrefix + sessionKey
	if err := s.client.RPush(ctx, key, data); err != nil {
		return fmt.Errorf("failed to append transcript entry: %w", err)
	}

	if err := s.client.LTrim(ctx, key, -s.maxEntries, -1); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warnf("Failed to trim transcript for session %s", sessionKey)
	}
	if err := s.client.Expire(ctx, key, s.ttl); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warnf("Failed to set transcript TTL for session %s", sessionKey)
	}

	return nil
}

// Recent returns up to limit most recent transcript entries for a session.
func (s *Store) Recent(ctx context.Context, sessionKey string, limit int64) ([]Entry, error) {
	if limit <= 0 {
		limit = s.maxEntries
	}

	raw, err := s.client.LRange(ctx, keyPrefix+sessionKey, -limit, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Skipping malformed transcript entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
