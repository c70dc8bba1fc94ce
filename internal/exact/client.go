// Package exact provides a minimal client for the Exact Online REST API,
// covering the endpoints the treasurer automation needs.
package exact

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Endpoint returns the OAuth2 endpoints for an Exact Online region base URL,
// e.g. https://start.exactonline.nl.
func Endpoint(baseURL string) oauth2.Endpoint {
	base := strings.TrimRight(baseURL, "/")
	return oauth2.Endpoint{
		AuthURL:   base + "/api/oauth2/auth",
		TokenURL:  base + "/api/oauth2/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// Client calls the Exact Online API with bearer tokens supplied by the given
// token source.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the given region base URL. Tokens are
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

// payload is the envelope Exact wraps every OData response in.
type payload[T any] struct {
	D struct {
		Results []T `json:"results"`
	} `json:"d"`
}

// AccountingDivision returns the accounting division ("administratie") the
// token grants access to. Also serves as a cheap probe that the credentials
// work at all.
func (c *Client) AccountingDivision(ctx context.Context) (int, error) {
	var response payload[struct {
		AccountingDivision int `json:"AccountingDivision"`
	}]
	if err := c.get(ctx, "/api/v1/current/Me?$select=AccountingDivision", &response); err != nil {
		return 0, err
	}
	if len(response.D.Results) == 0 {
		return 0, fmt.Errorf("me endpoint returned no results")
	}
	return response.D.Results[0].AccountingDivision, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
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
		return fmt.Errorf("GET %s: unexpected status %s", path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response of GET %s: %w", path, err)
	}
	return nil
}
