package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/internal/services/events"
	"github.com/jwebster45206/story-weaver/pkg/chat"
	"github.com/jwebster45206/story-weaver/pkg/genre"
	"github.com/jwebster45206/story-weaver/pkg/state"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// adventureResponse mirrors the API's create/read response.
type adventureResponse struct {
	Adventure *state.Session `json:"adventure"`
	RequestID string         `json:"request_id,omitempty"`
}

// turnResponse mirrors the API's turn acknowledgement.
type turnResponse struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

// doJSON sends body (if any) to path and decodes the response into out when
// the status matches want.
func doJSON(client *http.Client, method, url string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		var errorResp ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err != nil || errorResp.Error == "" {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		return fmt.Errorf("%s (status %d)", errorResp.Error, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func listGenres(client *http.Client, baseURL string) ([]genre.Preset, error) {
	var resp struct {
		Genres []genre.Preset `json:"genres"`
	}
	if err := doJSON(client, http.MethodGet, baseURL+"/v1/genres", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Genres, nil
}

func createAdventure(client *http.Client, baseURL string, g genre.Genre) (*state.Session, error) {
	var resp adventureResponse
	body := map[string]string{"genre": string(g)}
	if err := doJSON(client, http.MethodPost, baseURL+"/v1/adventures", body, http.StatusCreated, &resp); err != nil {
		return nil, fmt.Errorf("failed to create adventure: %w", err)
	}
	if resp.Adventure == nil {
		return nil, fmt.Errorf("failed to create adventure: empty response")
	}
	return resp.Adventure, nil
}

func getAdventure(client *http.Client, baseURL string, id uuid.UUID) (*state.Session, error) {
	var resp adventureResponse
	if err := doJSON(client, http.MethodGet, fmt.Sprintf("%s/v1/adventures/%s", baseURL, id), nil, http.StatusOK, &resp); err != nil {
		return nil, fmt.Errorf("failed to get adventure: %w", err)
	}
	return resp.Adventure, nil
}

// sendTurn submits a player utterance and returns the request id. The result
// arrives over the event stream.
func sendTurn(client *http.Client, baseURL string, id uuid.UUID, message string) (string, error) {
	var resp turnResponse
	body := chat.TurnRequest{Message: message}
	if err := doJSON(client, http.MethodPost, fmt.Sprintf("%s/v1/adventures/%s/turns", baseURL, id), body, http.StatusAccepted, &resp); err != nil {
		return "", fmt.Errorf("failed to send turn: %w", err)
	}
	return resp.RequestID, nil
}

func stopNarration(client *http.Client, baseURL string, id uuid.UUID) error {
	if err := doJSON(client, http.MethodPost, fmt.Sprintf("%s/v1/adventures/%s/stop", baseURL, id), nil, http.StatusOK, nil); err != nil {
		return fmt.Errorf("failed to stop narration: %w", err)
	}
	return nil
}

// listenToSSE connects to the adventure's event stream and forwards every
// event until ctx ends or the stream closes.
func listenToSSE(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID, eventChan chan<- events.Event) error {
	url := fmt.Sprintf("%s/v1/events/adventures/%s", baseURL, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SSE connection failed with status %d: %s", resp.StatusCode, string(body))
	}

	return readSSE(ctx, resp.Body, eventChan)
}

// readSSE parses "event:"/"data:" frames. Adventure events carry the full
// event JSON; other frames (such as "connected") keep their payload in Data.
func readSSE(ctx context.Context, r io.Reader, eventChan chan<- events.Event) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType, data string
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if eventType != "" {
				ev := parseSSEEvent(eventType, data)
				select {
				case eventChan <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			eventType, data = "", ""
			continue
		}

		switch {
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}

func parseSSEEvent(eventType, data string) events.Event {
	var ev events.Event
	if err := json.Unmarshal([]byte(data), &ev); err == nil && string(ev.Type) == eventType {
		return ev
	}

	ev = events.Event{Type: events.EventType(eventType)}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(data), &payload); err == nil {
		ev.Data = payload
	}
	return ev
}

// decodeField re-decodes one field of an event payload into out.
func decodeField(data map[string]interface{}, key string, out interface{}) error {
	raw, ok := data[key]
	if !ok {
		return fmt.Errorf("missing %q", key)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
