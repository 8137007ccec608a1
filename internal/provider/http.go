package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// doJSON performs one request with a bearer token, decodes a JSON response
// into out (when out is non-nil), and classifies failures. No retries here.
func doJSON(ctx context.Context, client *http.Client, providerName, method, url, accessToken string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", providerName, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", providerName, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := client.Do(req)
	if err != nil {
		// Timeouts and connection failures are transient from the
		// orchestrator's point of view, unless the caller was cancelled.
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%s request failed: %v: %w", providerName, err, ErrUnavailable)
	}
	defer resp.Body.Close()

	if err := classifyStatus(providerName, resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", providerName, err)
	}
	return nil
}

// classifyStatus maps HTTP status codes onto the provider error taxonomy.
func classifyStatus(providerName string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s returned %d: %w", providerName, resp.StatusCode, ErrAuthRejected)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s returned %d: %w", providerName, resp.StatusCode, ErrUnavailable)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s returned %d: %s", providerName, resp.StatusCode, string(snippet))
	}
}
