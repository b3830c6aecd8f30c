package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// BarkSender pushes to an iOS device through a Bark server URL of the form
// https://api.day.app/<device key>.
type BarkSender struct {
	baseURL string
	client  *http.Client
}

func NewBarkSender(baseURL string) *BarkSender {
	return &BarkSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Send issues GET {base}/{title}/{message} with both segments path-escaped.
func (b *BarkSender) Send(ctx context.Context, title, message string) error {
	u := fmt.Sprintf("%s/%s/%s", b.baseURL, url.PathEscape(title), url.PathEscape(message))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("bark: create request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("bark: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("bark: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (b *BarkSender) Name() string { return "bark" }
