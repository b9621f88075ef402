package reconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"studyhub-backend/internal/models"
)

// WSDialer dials the live session endpoint with gorilla/websocket.
type WSDialer struct {
	URL    string
	Dialer *websocket.Dialer
}

func (d *WSDialer) Dial(ctx context.Context, token string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", d.URL, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", d.URL, err)
	}
	return conn, nil
}

// TicketSource fetches a fresh connection ticket from the API for every
// attempt, authenticating with the account's access token.
func TicketSource(client *http.Client, baseURL, accessToken string) TokenSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/api/v1/ws/ticket"

	return func(ctx context.Context) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("request ticket: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("request ticket: unexpected status %s", resp.Status)
		}
		var t models.WSTicket
		if err := json.NewDecoder(resp.Body).Decode(&t); err != nil {
			return "", fmt.Errorf("decode ticket: %w", err)
		}
		if t.Ticket == "" {
			return "", fmt.Errorf("request ticket: empty ticket")
		}
		return t.Ticket, nil
	}
}
