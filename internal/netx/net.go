// Package netx contains small HTTP helpers for outbound integrations.
package netx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// PostJSON marshals body and POSTs it to url with the given extra headers.
// Any non-2xx response is returned as an error carrying the status and a
// bounded prefix of the response body.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("request failed: %s; body: %s", resp.Status, string(b))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
