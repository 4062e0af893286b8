package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// senderHTTPTimeout bounds how long a single alert delivery may take. Rule
// failures and feed disconnects are fired from the Executor/Worker's
// critical path; a slow Telegram or Discord endpoint must not block it
// beyond this.
const senderHTTPTimeout = 10 * time.Second

// postJSON marshals payload, POSTs it to url, and treats any non-2xx
// response as an error. It is shared by every Sender so each one only needs
// to build its own payload shape and name its own error prefix.
func postJSON(ctx context.Context, client *http.Client, url, errPrefix string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal payload: %w", errPrefix, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", errPrefix, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", errPrefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", errPrefix, resp.StatusCode, string(respBody))
	}
	return nil
}
