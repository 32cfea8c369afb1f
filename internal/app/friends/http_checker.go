package friends

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// InternalSecretHeader authenticates service-to-service calls.
const InternalSecretHeader = "X-Internal-Secret"

// HTTPChecker calls the friend-check endpoint of the website backend.
type HTTPChecker struct {
	baseURL string
	secret  string
	client  *http.Client
}

// NewHTTPChecker creates a checker against baseURL. A nil client uses http.DefaultClient;
// request deadlines come from the context.
func NewHTTPChecker(baseURL, secret string, client *http.Client) *HTTPChecker {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPChecker{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		client:  client,
	}
}

type friendshipResponse struct {
	AreFriends bool `json:"areFriends"`
}

// CheckFriendship implements Checker.
func (h *HTTPChecker) CheckFriendship(ctx context.Context, a, b string) (bool, error) {
	q := url.Values{}
	q.Set("battleTagA", a)
	q.Set("battleTagB", b)
	endpoint := h.baseURL + "/api/friends/check?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build friend check request: %w", err)
	}
	req.Header.Set(InternalSecretHeader, h.secret)
	req.Header.Set("Accept", "application/json")

	res, err := h.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("friend check request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return false, fmt.Errorf("friend check returned status %d", res.StatusCode)
	}

	var body friendshipResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode friend check response: %w", err)
	}

	return body.AreFriends, nil
}
