package commonly

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

func testClient(baseURL string) *Client {
	account := models.Account{
		AccountID:    "acct-1",
		BaseURL:      baseURL,
		RuntimeToken: "runtime-token",
		UserToken:    "user-token",
		AgentName:    "fern-agent",
		InstanceID:   "inst-1",
	}
	return NewClient(account, httpclient.NewClient(httpclient.DefaultConfig(), testLogger()), testLogger())
}

func TestPostMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "msg-42"}`))
	}))
	defer server.Close()

	client := testClient(server.URL)

	posted, err := client.PostMessage(context.Background(), "pod-1", "hello", map[string]any{"eventId": "evt-7"})
	require.NoError(t, err)
	assert.Equal(t, "msg-42", posted.ID)

	assert.Equal(t, "/api/agents/runtime/pods/pod-1/messages", gotPath)
	assert.Equal(t, "Bearer runtime-token", gotAuth)
	assert.Equal(t, "hello", gotBody["content"])

	metadata, ok := gotBody["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "fern-agent", metadata["agentType"])
	assert.Equal(t, "inst-1", metadata["instanceId"])
	assert.Equal(t, "evt-7", metadata["eventId"])
}

func TestPostMessage_NonSuccessRaises(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := testClient(server.URL)

	_, err := client.PostMessage(context.Background(), "pod-1", "hello", nil)
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err))
	assert.Equal(t, http.StatusBadGateway, httperror.GetStatusCode(err))
}

func TestPostMessage_MissingRuntimeTokenFailsBeforeNetwork(t *testing.T) {
	hit := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer server.Close()

	account := models.Account{AccountID: "acct-1", BaseURL: server.URL}
	client := NewClient(account, httpclient.NewClient(httpclient.DefaultConfig(), testLogger()), testLogger())

	_, err := client.PostMessage(context.Background(), "pod-1", "hello", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusPreconditionFailed, httperror.GetStatusCode(err))
	assert.False(t, hit)
}

func TestPostThreadComment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/agents/runtime/threads/thr-1/comments", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": "cmt-1"}`))
	}))
	defer server.Close()

	posted, err := testClient(server.URL).PostThreadComment(context.Background(), "thr-1", "reply", nil)
	require.NoError(t, err)
	assert.Equal(t, "cmt-1", posted.ID)
}

func TestAckEvent(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/agents/runtime/events/evt-1/ack", r.URL.Path)
			assert.Equal(t, http.MethodPost, r.Method)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		assert.NoError(t, testClient(server.URL).AckEvent(context.Background(), "evt-1"))
	})

	t.Run("NonSuccessRaises", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		err := testClient(server.URL).AckEvent(context.Background(), "evt-1")
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
	})
}

func TestFetchPendingEvents(t *testing.T) {
	t.Run("DecodesEvents", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/agents/runtime/events", r.URL.Path)
			_, _ = w.Write([]byte(`[{"id": "evt-1", "type": "pod.message", "podId": "pod-1"}]`))
		}))
		defer server.Close()

		events, err := testClient(server.URL).FetchPendingEvents(context.Background())
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "evt-1", events[0].ID)
		assert.Equal(t, models.EventTypePodMessage, events[0].Type)
	})

	t.Run("SoftFailureReturnsEmpty", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		events, err := testClient(server.URL).FetchPendingEvents(context.Background())
		assert.NoError(t, err)
		assert.Empty(t, events)
	})
}

func TestReportEnsembleResponse_NeverRaisesOnRemoteFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/pods/pod-1/ensemble/response", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := testClient(server.URL).ReportEnsembleResponse(context.Background(), "pod-1", "ens-1", "msg-1", "content")
	assert.NoError(t, err)
}

func TestSearch_UsesUserToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		assert.Equal(t, "release", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`[{"title": "found"}]`))
	}))
	defer server.Close()

	results, err := testClient(server.URL).Search(context.Background(), "pod-1", "release")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "found", results[0]["title"])
}

func TestUserScopedFallsBackToRuntimeToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer runtime-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	account := models.Account{AccountID: "acct-1", BaseURL: server.URL, RuntimeToken: "runtime-token"}
	client := NewClient(account, httpclient.NewClient(httpclient.DefaultConfig(), testLogger()), testLogger())

	_, err := client.ReadMemory(context.Background(), "pod-1", "notes")
	assert.NoError(t, err)
}

func TestWriteMemory_RaisesOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/memory/pod-1", r.URL.Path)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	err := testClient(server.URL).WriteMemory(context.Background(), "pod-1", "notes", map[string]any{"a": 1})
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, httperror.GetStatusCode(err))
}

func TestHealthCheck(t *testing.T) {
	t.Run("Healthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		assert.True(t, testClient(server.URL).HealthCheck(context.Background()))
	})

	t.Run("UnreachableIsFalse", func(t *testing.T) {
		assert.False(t, testClient("http://127.0.0.1:1").HealthCheck(context.Background()))
	})
}
