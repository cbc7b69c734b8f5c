// Copyright (c) 2026 Veriscore. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/taibuivan/veriscore/internal/platform/apperr"
)

// # GitHub Activity Client

// ActivitySource reports recent developer activity for a linked GitHub
// username. Implementations must treat upstream failures as recoverable:
// the caller scores zero activity rather than failing a recalculation.
type ActivitySource interface {
	// DistinctActiveDays counts the distinct UTC days with push activity
	// since the given time.
	DistinctActiveDays(context context.Context, username string, since time.Time) (int, error)
}

const (
	githubBaseURL        = "https://api.github.com"
	githubRequestTimeout = 10 * time.Second
	githubEventPageSize  = 100
)

// GithubClient fetches public push events from the GitHub REST API.
// The access token is optional; unauthenticated requests fall under
// GitHub's stricter rate limits but still work.
type GithubClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewGithubClient creates a GitHub activity client. Pass an empty token
// for unauthenticated access.
func NewGithubClient(token string) *GithubClient {
	return &GithubClient{
		httpClient: &http.Client{Timeout: githubRequestTimeout},
		baseURL:    githubBaseURL,
		token:      token,
	}
}

type githubEvent struct {
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

/*
DistinctActiveDays counts distinct UTC days with push events since a cutoff.

Description: Reads the user's public event feed, which GitHub caps at the
most recent 300 events across 90 days. That window is narrower than the
scoring bonus cap needs in the worst case, so the result is a lower bound.

Parameters:
  - context: context.Context
  - username: string
  - since: time.Time

Returns:
  - int: Number of distinct active days
  - error: apperr.Upstream on transport or API failures
*/
func (client *GithubClient) DistinctActiveDays(context context.Context, username string, since time.Time) (int, error) {
	days := map[string]struct{}{}

	for page := 1; page <= 3; page++ {
		events, err := client.fetchEvents(context, username, page)
		if err != nil {
			return 0, err
		}
		if len(events) == 0 {
			break
		}

		for _, event := range events {
			if event.Type != "PushEvent" || event.CreatedAt.Before(since) {
				continue
			}
			days[event.CreatedAt.UTC().Format("2006-01-02")] = struct{}{}
		}

		if len(events) < githubEventPageSize {
			break
		}
	}

	return len(days), nil
}

func (client *GithubClient) fetchEvents(context context.Context, username string, page int) ([]githubEvent, error) {
	endpoint := fmt.Sprintf("%s/users/%s/events/public?per_page=%d&page=%d",
		client.baseURL, url.PathEscape(username), githubEventPageSize, page)

	request, err := http.NewRequestWithContext(context, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, apperr.Upstream("GitHub", err)
	}
	request.Header.Set("Accept", "application/vnd.github+json")
	if client.token != "" {
		request.Header.Set("Authorization", "Bearer "+client.token)
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return nil, apperr.Upstream("GitHub", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, apperr.Upstream("GitHub", fmt.Errorf("github_events_status_%d", response.StatusCode))
	}

	var events []githubEvent
	if err := json.NewDecoder(response.Body).Decode(&events); err != nil {
		return nil, apperr.Upstream("GitHub", err)
	}
	return events, nil
}
