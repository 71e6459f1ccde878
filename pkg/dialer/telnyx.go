// Package dialer implements the outbound-campaign stub of spec.md §2:
// a Telnyx REST client plus a rate-limited worker that invokes it from a
// queue of pending numbers, handing each answered call to the
// Orchestrator. The HTTP client shape follows the teacher's hand-rolled
// provider clients (pkg/providers/stt/deepgram.go): net/http, a bearer
// header, and a JSON body, since no pack repo wires a REST client
// library for outbound telephony actions.
package dialer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/callcore-ai/callcore/internal/logging"
)

const defaultTelnyxBaseURL = "https://api.telnyx.com/v2"

// TelnyxClient issues outbound dial, transfer, and DTMF actions against
// the Telnyx Call Control API.
type TelnyxClient struct {
	apiKey       string
	connectionID string
	baseURL      string
	httpClient   *http.Client
	log          logging.Logger
}

func NewTelnyxClient(apiKey, connectionID string, log logging.Logger) *TelnyxClient {
	if log == nil {
		log = logging.NoOp{}
	}
	return &TelnyxClient{
		apiKey:       apiKey,
		connectionID: connectionID,
		baseURL:      defaultTelnyxBaseURL,
		httpClient:   http.DefaultClient,
		log:          log,
	}
}

// DialResult is the subset of Telnyx's call-creation response the
// dialer needs to correlate an answered call with its pending context.
type DialResult struct {
	CallControlID string `json:"call_control_id"`
	CallLegID     string `json:"call_leg_id"`
}

// Dial places an outbound call, attaching clientState so the answering
// webhook (outside this package's scope) can look up the dial context.
func (c *TelnyxClient) Dial(ctx context.Context, to, from string, clientState []byte) (DialResult, error) {
	body := map[string]any{
		"connection_id": c.connectionID,
		"to":            to,
		"from":          from,
	}
	if len(clientState) > 0 {
		body["client_state"] = string(clientState)
	}
	var result DialResult
	if err := c.post(ctx, "/calls", body, &result); err != nil {
		return DialResult{}, err
	}
	return result, nil
}

// Transfer moves an in-progress call to a new destination.
func (c *TelnyxClient) Transfer(ctx context.Context, callControlID, to string) error {
	return c.post(ctx, fmt.Sprintf("/calls/%s/actions/transfer", callControlID), map[string]any{"to": to}, nil)
}

// SendDTMF plays touch-tone digits into an in-progress call.
func (c *TelnyxClient) SendDTMF(ctx context.Context, callControlID, digits string) error {
	return c.post(ctx, fmt.Sprintf("/calls/%s/actions/send_dtmf", callControlID), map[string]any{"digits": digits}, nil)
}

func (c *TelnyxClient) post(ctx context.Context, path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("dialer: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("dialer: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dialer: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("dialer: telnyx error (status %d) on %s: %s", resp.StatusCode, path, string(respBody))
	}

	if out == nil {
		return nil
	}
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("dialer: decode response %s: %w", path, err)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Data, out)
}
