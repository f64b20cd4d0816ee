package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/pkg/chat"
	"github.com/jwebster45206/story-weaver/pkg/state"
)

var (
	// PollInterval is how often to retry while the adventure is busy
	PollInterval = 1 * time.Second
	// OpeningTimeout is max time to wait for the opening scene
	OpeningTimeout = 90 * time.Second
	// BusyTimeout is max time to keep retrying a turn that got 409
	BusyTimeout = 60 * time.Second
)

// errBusy marks a 409 from the turn endpoint.
var errBusy = fmt.Errorf("adventure is busy")

// CreateAdventure starts an adventure in genre g.
func CreateAdventure(ctx context.Context, client *http.Client, baseURL, g string) (*state.Session, error) {
	body, err := json.Marshal(map[string]string{"genre": g})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/adventures", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create adventure: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("create adventure returned %d: %s", resp.StatusCode, string(b))
	}

	var created adventureResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode created adventure: %w", err)
	}
	if created.Adventure == nil {
		return nil, fmt.Errorf("create adventure returned no adventure")
	}
	return created.Adventure, nil
}

// GetAdventure retrieves the current adventure
func GetAdventure(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID) (*state.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/adventures/%s", baseURL, id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create adventure request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send adventure request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("adventure endpoint returned %d: %s", resp.StatusCode, string(b))
	}

	var got adventureResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		return nil, fmt.Errorf("failed to decode adventure: %w", err)
	}
	return got.Adventure, nil
}

// DeleteAdventure discards an adventure. A missing adventure is not an error.
func DeleteAdventure(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/v1/adventures/%s", baseURL, id), nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete adventure: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete adventure returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// WaitForOpening polls until the opening narration is in the chat log.
func WaitForOpening(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID) (*state.Session, error) {
	timeout := time.After(OpeningTimeout)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timeout:
			return nil, fmt.Errorf("timeout waiting for opening scene (waited %v)", OpeningTimeout)
		case <-ticker.C:
			s, err := GetAdventure(ctx, client, baseURL, id)
			if err != nil {
				// Log error but continue polling
				continue
			}
			if len(s.ChatLog) > 0 {
				return s, nil
			}
		}
	}
}

// PostTurn runs a turn synchronously (?wait=true) and returns its outcome.
// A 409 while an earlier turn or the opening is still running is retried.
func PostTurn(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID, message string) (*TurnOutcome, error) {
	deadline := time.Now().Add(BusyTimeout)
	for {
		outcome, err := postTurnOnce(ctx, client, baseURL, id, message)
		if err != errBusy {
			return outcome, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout waiting for adventure to accept a turn (waited %v)", BusyTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(PollInterval):
		}
	}
}

func postTurnOnce(ctx context.Context, client *http.Client, baseURL string, id uuid.UUID, message string) (*TurnOutcome, error) {
	body, err := json.Marshal(chat.TurnRequest{Message: message})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal turn request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/adventures/%s/turns?wait=true", baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create turn request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send turn request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusConflict:
		return nil, errBusy
	case http.StatusOK, http.StatusServiceUnavailable:
		var outcome TurnOutcome
		if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
			return nil, fmt.Errorf("failed to parse turn response: %w", err)
		}
		if resp.StatusCode == http.StatusServiceUnavailable {
			return &outcome, fmt.Errorf("adventure terminated: %s", outcome.Error)
		}
		return &outcome, nil
	default:
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("turn endpoint returned %d: %s", resp.StatusCode, string(b))
	}
}
