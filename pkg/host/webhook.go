package host

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/stem/pkg/tracing"

	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/models"
)

// WebhookDispatcher forwards inbound contexts to an agent runtime webhook
// and delivers the reply blocks it returns. It is the default dispatcher
// when the runtime runs out of process.
type WebhookDispatcher struct {
	http   *httpclient.Client
	url    string
	token  string
	logger ectologger.Logger
}

// NewWebhookDispatcher creates a dispatcher for the given webhook URL.
func NewWebhookDispatcher(http *httpclient.Client, url string, token string, logger ectologger.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		http:   http,
		url:    url,
		token:  token,
		logger: logger,
	}
}

type webhookResponse struct {
	Replies []models.ReplyPayload `json:"replies"`
}

// DispatchReply posts the inbound context to the webhook and invokes deliver
// once per returned reply block, in order. Delivery errors stop the run and
// are returned to the caller.
func (d *WebhookDispatcher) DispatchReply(ctx context.Context, msg models.InboundContext, deliver DeliveryFunc) error {
	ctx, span := tracing.StartSpan(ctx, "host.WebhookDispatcher.DispatchReply")
	defer span.End()

	if d.url == "" {
		return httperror.NewHTTPError(http.StatusPreconditionFailed, "agent webhook URL is not configured")
	}

	headers := map[string]string{}
	if d.token != "" {
		headers["Authorization"] = "Bearer " + d.token
	}

	resp, err := d.http.PostJSON(ctx, d.url, msg, headers)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return httperror.NewHTTPErrorf(resp.StatusCode, "agent webhook returned status %d", resp.StatusCode)
	}

	var parsed webhookResponse
	if err := resp.DecodeJSON(&parsed); err != nil {
		return err
	}

	for _, reply := range parsed.Replies {
		if err := deliver(ctx, reply); err != nil {
			return err
		}
	}

	return nil
}
