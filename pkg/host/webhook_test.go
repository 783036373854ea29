package host

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestStaticRouter(t *testing.T) {
	route, err := NewStaticRouter().ResolveAgentRoute("commonly", "acct-1", "commonly:pod-1")
	require.NoError(t, err)
	assert.Equal(t, "commonly:acct-1:commonly:pod-1", route.SessionKey)
	assert.Equal(t, "acct-1", route.AgentID)
	assert.Equal(t, "commonly:acct-1", route.MainSessionKey)
}

func TestWebhookDispatcher_DeliversReturnedBlocksInOrder(t *testing.T) {
	var gotAuth string
	var gotMsg models.InboundContext

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotMsg))
		_, _ = w.Write([]byte(`{"replies": [{"text": "one"}, {"text": "two"}]}`))
	}))
	defer server.Close()

	dispatcher := NewWebhookDispatcher(httpclient.NewClient(httpclient.DefaultConfig(), testLogger()), server.URL, "hook-token", testLogger())

	var delivered []string
	err := dispatcher.DispatchReply(context.Background(), models.InboundContext{Body: "hello"}, func(ctx context.Context, reply models.ReplyPayload) error {
		delivered = append(delivered, reply.Text)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, delivered)
	assert.Equal(t, "Bearer hook-token", gotAuth)
	assert.Equal(t, "hello", gotMsg.Body)
}

func TestWebhookDispatcher_MissingURLFailsBeforeNetwork(t *testing.T) {
	dispatcher := NewWebhookDispatcher(httpclient.NewClient(httpclient.DefaultConfig(), testLogger()), "", "", testLogger())

	err := dispatcher.DispatchReply(context.Background(), models.InboundContext{}, func(ctx context.Context, reply models.ReplyPayload) error {
		t.Error("deliver must not run without a webhook URL")
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, http.StatusPreconditionFailed, httperror.GetStatusCode(err))
}

func TestWebhookDispatcher_NonSuccessRaises(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	dispatcher := NewWebhookDispatcher(httpclient.NewClient(httpclient.DefaultConfig(), testLogger()), server.URL, "", testLogger())

	err := dispatcher.DispatchReply(context.Background(), models.InboundContext{}, func(ctx context.Context, reply models.ReplyPayload) error {
		return nil
	})

	require.Error(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, httperror.GetStatusCode(err))
}
