// Package remote talks to the sync server: push the local club
// document, pull the remote one, and reconcile the two. Both
// operations are explicit user actions; nothing here runs in the
// background.
package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/sling"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/token"
)

const syncPath = "api/events/sync"

// Client performs authenticated push/pull calls against a sync server.
type Client struct {
	base   *sling.Sling
	secret string
}

// New creates a sync client for the given server base URL and shared
// secret.
func New(baseURL, secret string) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	httpClient := &http.Client{Timeout: 15 * time.Second}
	return &Client{
		base:   sling.New().Client(httpClient).Base(baseURL),
		secret: secret,
	}
}

type pushRequest struct {
	ClubSlug       string                `json:"clubSlug"`
	Events         []*model.Event        `json:"events"`
	Validations    model.ValidationState `json:"validations,omitempty"`
	CurrentEventID string                `json:"currentEventId,omitempty"`
}

type pushResponse struct {
	Success bool `json:"success"`
	Synced  int  `json:"synced"`
}

type fetchResponse struct {
	Success bool               `json:"success"`
	Data    *model.StorageData `json:"data"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func (e *errorResponse) asError(status int) error {
	if e.Message != "" {
		return fmt.Errorf("sync server: %s (%d)", e.Message, status)
	}
	if e.Error != "" {
		return fmt.Errorf("sync server: %s (%d)", e.Error, status)
	}
	return fmt.Errorf("sync server returned status %d", status)
}

// Push sends the full local document for the slug to the remote store.
// It returns the number of events the server accepted.
func (c *Client) Push(ctx context.Context, slug string, data *model.StorageData) (int, error) {
	body := pushRequest{
		ClubSlug:       slug,
		Events:         data.Events,
		Validations:    data.Validations,
		CurrentEventID: data.CurrentEventID,
	}

	req, err := c.base.New().
		Post(syncPath).
		Set("X-Sync-Token", token.Generate(slug, c.secret)).
		BodyJSON(body).
		Request()
	if err != nil {
		return 0, fmt.Errorf("building push request: %w", err)
	}

	var ok pushResponse
	var fail errorResponse
	resp, err := c.base.Do(req.WithContext(ctx), &ok, &fail)
	if err != nil {
		return 0, fmt.Errorf("pushing to sync server: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fail.asError(resp.StatusCode)
	}
	return ok.Synced, nil
}

// Pull fetches the slug's remote document. A slug the server has never
// seen comes back as an empty document, not an error.
func (c *Client) Pull(ctx context.Context, slug string) (*model.StorageData, error) {
	req, err := c.base.New().
		Get(syncPath).
		Set("X-Sync-Token", token.Generate(slug, c.secret)).
		QueryStruct(struct {
			ClubSlug string `url:"clubSlug"`
		}{ClubSlug: slug}).
		Request()
	if err != nil {
		return nil, fmt.Errorf("building pull request: %w", err)
	}

	var ok fetchResponse
	var fail errorResponse
	resp, err := c.base.Do(req.WithContext(ctx), &ok, &fail)
	if err != nil {
		return nil, fmt.Errorf("pulling from sync server: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fail.asError(resp.StatusCode)
	}
	if ok.Data == nil {
		return model.NewStorageData(), nil
	}
	return ok.Data, nil
}
