// Package pretix provides a minimal client for the Pretix ticketing API,
// covering the endpoints the treasurer automation needs.
package pretix

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Endpoint returns the OAuth2 endpoints for a Pretix instance base URL,
// e.g. https://pretix.example.org. Pretix expects client credentials via
// basic auth on the token endpoint.
func Endpoint(baseURL string) oauth2.Endpoint {
	base := strings.TrimRight(baseURL, "/")
	return oauth2.Endpoint{
		AuthURL:   base + "/api/v1/oauth/authorize",
		TokenURL:  base + "/api/v1/oauth/token",
		AuthStyle: oauth2.AuthStyleInHeader,
	}
}

// Organizer is an organizer account the token has access to.
type Organizer struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Event is a single event under an organizer. Name is keyed by language
// shortcode, e.g. "en".
type Event struct {
	Name map[string]string `json:"name"`
	Slug string            `json:"slug"`
	Live bool              `json:"live"`
}

// Client calls the Pretix API with bearer tokens supplied by the given token
// source.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the given instance base URL. Tokens are
// acquired per request through the token source.
func NewClient(baseURL string, source oauth2.TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   30 * time.Second,
			Transport: &oauth2.Transport{Source: source},
		},
	}
}

// page is the envelope of Pretix's paginated list responses.
type page[T any] struct {
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

// Organizers lists all organizers the token has access to.
func (c *Client) Organizers(ctx context.Context) ([]Organizer, error) {
	return listPaginated[Organizer](ctx, c, c.baseURL+"/api/v1/organizers/")
}

// Events lists all events of the given organizer.
func (c *Client) Events(ctx context.Context, organizer string) ([]Event, error) {
	return listPaginated[Event](ctx, c, fmt.Sprintf("%s/api/v1/organizers/%s/events/", c.baseURL, organizer))
}

// listPaginated walks a paginated list endpoint until the last page.
func listPaginated[T any](ctx context.Context, c *Client, url string) ([]T, error) {
	var all []T
	for next := &url; next != nil; {
		var p page[T]
		if err := c.get(ctx, *next, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Results...)
		next = p.Next
	}
	return all, nil
}

func (c *Client) get(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response of GET %s: %w", url, err)
	}
	return nil
}
