// Package results fetches race classifications from an external source.
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"podium-bot/internal/models"
)

// Entry is one classified row keyed by the source's rider reference.
type Entry struct {
	RiderRef string              `json:"rider"`
	Position int                 `json:"position"`
	Status   models.FinishStatus `json:"status"`
}

// Provider returns the classification for a race, or found=false when the
// source has none yet.
type Provider interface {
	FetchPodium(ctx context.Context, externalRef string) (entries []Entry, found bool, err error)
}

// HTTPProvider reads GET {base}/races/{ref}/results.
type HTTPProvider struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPProvider(baseURL, token string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type resultsResponse struct {
	Results []struct {
		Rider    string `json:"rider"`
		Position int    `json:"position"`
		Status   string `json:"status"`
	} `json:"results"`
}

func (p *HTTPProvider) FetchPodium(ctx context.Context, externalRef string) ([]Entry, bool, error) {
	if externalRef == "" {
		return nil, false, nil
	}
	u := fmt.Sprintf("%s/races/%s/results", p.baseURL, url.PathEscape(externalRef))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, false, fmt.Errorf("results API error: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var payload resultsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, false, fmt.Errorf("decoding response: %w", err)
	}
	if len(payload.Results) == 0 {
		return nil, false, nil
	}
	out := make([]Entry, 0, len(payload.Results))
	for _, r := range payload.Results {
		out = append(out, Entry{RiderRef: r.Rider, Position: r.Position, Status: models.ParseFinishStatus(r.Status)})
	}
	return out, true, nil
}

// Chain asks each provider in turn and returns the first classification found.
type Chain []Provider

func (c Chain) FetchPodium(ctx context.Context, externalRef string) ([]Entry, bool, error) {
	var firstErr error
	for _, p := range c {
		entries, found, err := p.FetchPodium(ctx, externalRef)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if found {
			return entries, true, nil
		}
	}
	return nil, false, firstErr
}
