// Package assets defines the provider contracts behind the production
// tools (planning, speech, imagery, video, music, mixing, transcription,
// export, upload, import) and the leaf implementations that talk to
// external services. Tool executors consume the interfaces; tests use the
// deterministic fakes in assetstest.
package assets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lordpython/aisoulstudio/llm"
)

const maxProviderResponseSize = 32 * 1024 * 1024

var defaultHTTPClient = &http.Client{Timeout: 120 * time.Second}

// postJSON posts a JSON body to url and decodes the JSON response into out.
// Non-2xx statuses are classified through the shared HTTP error family, so
// retry harnesses can tell transient failures (429, 5xx) from fatal ones
// and inspect the response body.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in, out any) error {
	if client == nil {
		client = defaultHTTPClient
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return llm.NewTransientError(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseSize))
	if err != nil {
		return llm.NewTransientError(fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llm.ClassifyHTTPStatus(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// getJSON issues a GET and decodes the JSON response, with the same error
// classification as postJSON.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
	if client == nil {
		client = defaultHTTPClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return llm.NewTransientError(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseSize))
	if err != nil {
		return llm.NewTransientError(fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llm.ClassifyHTTPStatus(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
