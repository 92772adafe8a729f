package shield

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

type VerdictSource string

const (
	SourceCAS       VerdictSource = "CAS"
	SourceSpamWatch VerdictSource = "SpamWatch"

	providerHTTPTimeout = 10 * time.Second
)

// Verdict is a positive ban signal from one provider. Absence of a
// verdict is expressed as a nil pointer, never an error.
type Verdict struct {
	Source    VerdictSource
	Reference string
	Reason    string
}

// CASClient checks users against the Combot Anti Spam public registry.
type CASClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewCASClient(baseURL string) *CASClient {
	return &CASClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: providerHTTPTimeout},
	}
}

// Check returns a verdict when the user is CAS-listed. Connectivity
// failures degrade to no verdict; an unparseable body is a real error.
func (c *CASClient) Check(ctx context.Context, userID int64) (*Verdict, error) {
	url := fmt.Sprintf("%s/check?user_id=%d", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithField("error", err.Error()).Debug("cas check failed, degrading to no verdict")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		log.WithField("status", resp.StatusCode).Debug("cas check unexpected status, degrading to no verdict")
		return nil, nil
	}

	var body struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode cas response: %w", err)
	}
	if !body.OK {
		return nil, nil
	}
	return &Verdict{
		Source:    SourceCAS,
		Reference: fmt.Sprintf("https://cas.chat/query?u=%d", userID),
		Reason:    "CAS banned",
	}, nil
}

// SpamWatchClient checks users against the SpamWatch ban list. An
// absent API token is a recognized disabled state, logged once.
type SpamWatchClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewSpamWatchClient(baseURL, token string) *SpamWatchClient {
	if token == "" {
		log.Warn("no SpamWatch API token, checks disabled")
	}
	return &SpamWatchClient{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: providerHTTPTimeout},
	}
}

func (c *SpamWatchClient) Enabled() bool {
	return c.token != ""
}

func (c *SpamWatchClient) Check(ctx context.Context, userID int64) (*Verdict, error) {
	if !c.Enabled() {
		return nil, nil
	}

	url := fmt.Sprintf("%s/v1/banlist/%d", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithField("error", err.Error()).Debug("spamwatch check failed, degrading to no verdict")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		log.WithField("status", resp.StatusCode).Debug("spamwatch check unexpected status, degrading to no verdict")
		return nil, nil
	}

	var body struct {
		ID     int64  `json:"id"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode spamwatch response: %w", err)
	}
	return &Verdict{
		Source: SourceSpamWatch,
		Reason: body.Reason,
	}, nil
}

// verdictProvider abstracts the two registries for the scanner.
type verdictProvider interface {
	Check(ctx context.Context, userID int64) (*Verdict, error)
}
