package bridge

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

// recognizedPrefixes are stripped from destination identifiers to recover
// the bare pod id.
var recognizedPrefixes = []string{models.AddressPrefix, "pod:", "group:"}

// ResolvePodID strips recognized prefixes from a destination identifier.
func ResolvePodID(to string) string {
	for _, prefix := range recognizedPrefixes {
		if strings.HasPrefix(to, prefix) {
			return strings.TrimPrefix(to, prefix)
		}
	}
	return to
}

// SendMessage is the direct, host-initiated outbound path: it posts text to
// a destination pod outside any event cycle. Empty messages produce a
// synthetic id without a network call.
func (a *Adapter) SendMessage(ctx context.Context, to string, text string, mediaURL string) (string, error) {
	body := strings.TrimSpace(text)
	if mediaURL != "" {
		if body != "" {
			body = body + "\n" + mediaURL
		} else {
			body = mediaURL
		}
	}

	if body == "" {
		return "fern-empty-" + uuid.New().String(), nil
	}

	podID := ResolvePodID(to)
	posted, err := a.client.PostMessage(ctx, podID, body, nil)
	if err != nil {
		return "", err
	}

	a.markOutbound()
	metrics.RecordDelivery(a.account.AccountID, "message", "ok")
	return posted.ID, nil
}
