// Package backend calls the statistic service for the clan and picture of a player.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"loungechat/internal/app/user"
)

// Client fetches chat details from the statistic service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client against baseURL. A nil client uses http.DefaultClient;
// request deadlines come from the context.
func NewClient(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type chatDetailsResponse struct {
	ClanID         string               `json:"clanId"`
	ProfilePicture *user.ProfilePicture `json:"profilePicture"`
}

// GetChatDetails returns the clan tag and profile picture of battleTag. A player without a
// stored picture gets the default one.
func (c *Client) GetChatDetails(ctx context.Context, battleTag string) (*user.Cosmetics, error) {
	endpoint := c.baseURL + "/api/players/" + url.PathEscape(battleTag) + "/clan-and-picture"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build chat details request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat details request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNoContent || res.StatusCode == http.StatusNotFound {
		return &user.Cosmetics{ProfilePicture: user.DefaultProfilePicture()}, nil
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("chat details returned status %d", res.StatusCode)
	}

	var body chatDetailsResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode chat details response: %w", err)
	}

	details := &user.Cosmetics{
		ClanTag:        body.ClanID,
		ProfilePicture: user.DefaultProfilePicture(),
	}
	if body.ProfilePicture != nil {
		details.ProfilePicture = *body.ProfilePicture
	}
	return details, nil
}
