// Package commonly wraps the Commonly REST API. Each method issues exactly
// one outbound HTTP call. Mutating calls raise typed failures on non-success
// statuses; read calls log a warning and return an empty default so a flaky
// read never aborts event processing.
package commonly

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Client is a stateless-per-call REST wrapper bound to one account's
// credentials.
type Client struct {
	account models.Account
	http    *httpclient.Client
	logger  ectologger.Logger
}

// NewClient creates a client for the given account. No validation happens
// here; credential checks fire per call so user-scoped and runtime-scoped
// methods can fail independently.
func NewClient(account models.Account, http *httpclient.Client, logger ectologger.Logger) *Client {
	return &Client{
		account: account,
		http:    http,
		logger:  logger,
	}
}

// PostedMessage is the minimal result of posting a message or comment.
type PostedMessage struct {
	ID string `json:"id"`
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.account.BaseURL, "/") + path
}

// runtimeHeaders returns auth headers for runtime-scoped endpoints. It fails
// before any network call when the runtime token is absent.
func (c *Client) runtimeHeaders() (map[string]string, error) {
	if c.account.RuntimeToken == "" {
		return nil, httperror.NewHTTPErrorf(http.StatusPreconditionFailed,
			"account %s has no runtime token configured", c.account.AccountID)
	}
	return map[string]string{"Authorization": "Bearer " + c.account.RuntimeToken}, nil
}

// userHeaders returns auth headers for user-scoped endpoints, preferring the
// user token and falling back to the runtime token.
func (c *Client) userHeaders() (map[string]string, error) {
	token := c.account.ResolvedUserToken()
	if token == "" {
		return nil, httperror.NewHTTPErrorf(http.StatusPreconditionFailed,
			"account %s has neither user nor runtime token configured", c.account.AccountID)
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// mergeMetadata merges caller metadata with the account's agent identity.
// The remote side does not guarantee metadata keys survive verbatim.
func (c *Client) mergeMetadata(metadata map[string]any) map[string]any {
	merged := map[string]any{
		"agentType":  c.account.AgentName,
		"instanceId": c.account.InstanceID,
	}
	for k, v := range metadata {
		merged[k] = v
	}
	return merged
}

// HealthCheck reports whether the remote API answers its health endpoint.
// It never fails: any transport error is reported as false.
func (c *Client) HealthCheck(ctx context.Context) bool {
	ctx, span := tracing.StartSpan(ctx, "commonly.Client.HealthCheck")
	defer span.End()

	resp, err := c.http.Get(ctx, c.endpoint("/api/health"), nil)
	if err != nil {
		return false
	}
	return resp.IsSuccess()
}

// PostMessage posts a message to a pod. Runtime scoped; raises on failure.
func (c *Client) PostMessage(ctx context.Context, podID string, content string, metadata map[string]any) (*PostedMessage, error) {
	ctx, span := tracing.StartSpan(ctx, "commonly.Client.PostMessage")
	defer span.End()

	headers, err := c.runtimeHeaders()
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"content":  content,
		"metadata": c.mergeMetadata(metadata),
	}

	resp, err := c.http.PostJSON(ctx, c.endpoint("/api/agents/runtime/pods/"+url.PathEscape(podID)+"/messages"), body, headers)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, httperror.NewHTTPErrorf(resp.StatusCode, "failed to post message to pod %s", podID)
	}

	var posted PostedMessage
	if err := resp.DecodeJSON(&posted); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Posted message to pod %s but could not decode response", podID)
	}
	return &posted, nil
}

// PostThreadComment posts a comment to a thread. Runtime scoped; raises on
// failure.
func (c *Client) PostThreadComment(ctx context.Context, threadID string, content string, metadata map[string]any) (*PostedMessage, error) {
	ctx, span := tracing.StartSpan(ctx, "commonly.Client.PostThreadComment")
	defer span.End()

	headers, err := c.runtimeHeaders()
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"content":  content,
		"metadata": c.mergeMetadata(metadata),
	}

	resp, err := c.http.PostJSON(ctx, c.endpoint("/api/agents/runtime/threads/"+url.PathEscape(threadID)+"/comments"), body, headers)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, httperror.NewHTTPErrorf(resp.StatusCode, "failed to post comment to thread %s", threadID)
	}

	var posted PostedMessage
	if err := resp.DecodeJSON(&posted); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Posted comment to thread %s but could not decode response", threadID)
	}
	return &posted, nil
}

// AckEvent acknowledges a delivered event. Runtime scoped; raises on
// failure. Callers treat acknowledgment as best-effort and must not let an
// ack failure abort an otherwise-successful event cycle.
func (c *Client) AckEvent(ctx context.Context, eventID string) error {
	ctx, span := tracing.StartSpan(ctx, "commonly.Client.AckEvent")
	defer span.End()

	headers, err := c.runtimeHeaders()
	if err != nil {
		return err
	}

	resp, err := c.http.PostJSON(ctx, c.endpoint("/api/agents/runtime/events/"+url.PathEscape(eventID)+"/ack"), nil, headers)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return httperror.NewHTTPErrorf(resp.StatusCode, "failed to ack event %s", eventID)
	}
	return nil
}

// FetchPendingEvents fetches events queued for this agent while it was
// offline. Runtime scoped. A non-success response is a soft failure: it is
// logged and an empty slice is returned.
func (c *Client) FetchPendingEvents(ctx context.Context) ([]models.Event, error) {
	ctx, span := tracing.StartSpan(ctx, "commonly.Client.FetchPendingEvents")
	defer span.End()

	headers, err := c.runtimeHeaders()
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Get(ctx, c.endpoint("/api/agents/runtime/events"), headers)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Failed to fetch pending events")
		return nil, nil
	}
	if !resp.IsSuccess() {
		c.logger.WithContext(ctx).Warnf("Fetch pending events returned status %d", resp.StatusCode)
		return nil, nil
	}

	var events []models.Event
	if err := resp.DecodeJSON(&events); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warn("Failed to decode pending events")
		return nil, nil
	}
	return events, nil
}

// ReportEnsembleResponse reports a posted message as this agent's response
// for an ensemble turn. Runtime scoped, but a failed report is a soft
// failure: the reply has already been delivered, so the report is logged and
// swallowed.
func (c *Client) ReportEnsembleResponse(ctx context.Context, podID string, ensembleID string, messageID string, content string) error {
	ctx, span := tracing.StartSpan(ctx, "commonly.Client.ReportEnsembleResponse")
	defer span.End()

	headers, err := c.runtimeHeaders()
	if err != nil {
		return err
	}

	body := map[string]any{
		"ensembleId": ensembleID,
		"messageId":  messageID,
		"content":    content,
		"agentType":  c.account.AgentName,
		"instanceId": c.account.InstanceID,
	}

	resp, err := c.http.PostJSON(ctx, c.endpoint("/api/pods/"+url.PathEscape(podID)+"/ensemble/response"), body, headers)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to report ensemble response for pod %s", podID)
		return nil
	}
	if !resp.IsSuccess() {
		c.logger.WithContext(ctx).Warnf("Ensemble response report for pod %s returned status %d", podID, resp.StatusCode)
	}
	return nil
}

// GetContext fetches the agent-facing context blob for a pod. Runtime
// scoped; soft failure returns nil.
func (c *Client) GetContext(ctx context.Context, podID string) (map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "commonly.Client.GetContext")
	defer span.End()

	headers, err := c.runtimeHeaders()
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Get(ctx, c.endpoint("/api/agents/runtime/pods/"+url.PathEscape(podID)+"/context"), headers)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to fetch context for pod %s", podID)
		return nil, nil
	}
	if !resp.IsSuccess() {
		c.logger.WithContext(ctx).Warnf("Context fetch for pod %s returned status %d", podID, resp.StatusCode)
		return nil, nil
	}

	var out map[string]any
	if err := resp.DecodeJSON(&out); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to decode context for pod %s", podID)
		return nil, nil
	}
	return out, nil
}

// GetMessages fetches recent messages for a pod. Runtime scoped; soft
// failure returns an empty slice.
func (c *Client) GetMessages(ctx context.Context, podID string, limit int) ([]map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "commonly.Client.GetMessages")
	defer span.End()

	headers, err := c.runtimeHeaders()
	if err != nil {
		return nil, err
	}

	endpoint := c.endpoint("/api/agents/runtime/pods/" + url.PathEscape(podID) + "/messages")
	if limit > 0 {
		endpoint += fmt.Sprintf("?limit=%d", limit)
	}

	resp, err := c.http.Get(ctx, endpoint, headers)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to fetch messages for pod %s", podID)
		return nil, nil
	}
	if !resp.IsSuccess() {
		c.logger.WithContext(ctx).Warnf("Message fetch for pod %s returned status %d", podID, resp.StatusCode)
		return nil, nil
	}

	var out []map[string]any
	if err := resp.DecodeJSON(&out); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to decode messages for pod %s", podID)
		return nil, nil
	}
	return out, nil
}

// Search runs a search scoped to a pod. User scoped (falls back to the
// runtime token); soft failure returns an empty slice.
func (c *Client) Search(ctx context.Context, podID string, query string) ([]map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "commonly.Client.Search")
	defer span.End()

	headers, err := c.userHeaders()
	if err != nil {
		return nil, err
	}

	endpoint := c.endpoint("/api/v1/search/"+url.PathEscape(podID)) + "?q=" + url.QueryEscape(query)
	resp, err := c.http.Get(ctx, endpoint, headers)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Search failed for pod %s", podID)
		return nil, nil
	}
	if !resp.IsSuccess() {
		c.logger.WithContext(ctx).Warnf("Search for pod %s returned status %d", podID, resp.StatusCode)
		return nil, nil
	}

	var out []map[string]any
	if err := resp.DecodeJSON(&out); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to decode search results for pod %s", podID)
		return nil, nil
	}
	return out, nil
}

// ReadMemory reads a memory document for a pod. User scoped; soft failure
// returns nil.
func (c *Client) ReadMemory(ctx context.Context, podID string, path string) (map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "commonly.Client.ReadMemory")
	defer span.End()

	headers, err := c.userHeaders()
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Get(ctx, c.endpoint("/api/v1/pods/"+url.PathEscape(podID)+"/memory/"+url.PathEscape(path)), headers)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to read memory %s for pod %s", path, podID)
		return nil, nil
	}
	if !resp.IsSuccess() {
		c.logger.WithContext(ctx).Warnf("Memory read %s for pod %s returned status %d", path, podID, resp.StatusCode)
		return nil, nil
	}

	var out map[string]any
	if err := resp.DecodeJSON(&out); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to decode memory %s for pod %s", path, podID)
		return nil, nil
	}
	return out, nil
}

// WriteMemory writes a memory document for a pod. User scoped; raises on
// failure.
func (c *Client) WriteMemory(ctx context.Context, podID string, path string, content any) error {
	ctx, span := tracing.StartSpan(ctx, "commonly.Client.WriteMemory")
	defer span.End()

	headers, err := c.userHeaders()
	if err != nil {
		return err
	}

	body := map[string]any{
		"path":    path,
		"content": content,
	}

	resp, err := c.http.PostJSON(ctx, c.endpoint("/api/v1/memory/"+url.PathEscape(podID)), body, headers)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return httperror.NewHTTPErrorf(resp.StatusCode, "failed to write memory %s for pod %s", path, podID)
	}
	return nil
}

// GetSummaries fetches stored summaries for a pod. User scoped; soft
// failure returns an empty slice.
func (c *Client) GetSummaries(ctx context.Context, podID string) ([]map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "commonly.Client.GetSummaries")
	defer span.End()

	headers, err := c.userHeaders()
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Get(ctx, c.endpoint("/api/v1/pods/"+url.PathEscape(podID)+"/summaries"), headers)
	if err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to fetch summaries for pod %s", podID)
		return nil, nil
	}
	if !resp.IsSuccess() {
		c.logger.WithContext(ctx).Warnf("Summaries fetch for pod %s returned status %d", podID, resp.StatusCode)
		return nil, nil
	}

	var out []map[string]any
	if err := resp.DecodeJSON(&out); err != nil {
		c.logger.WithContext(ctx).WithError(err).Warnf("Failed to decode summaries for pod %s", podID)
		return nil, nil
	}
	return out, nil
}
