package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/fetch"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/model"
	"github.com/pierrealexandreguillemin-a11y/nos-joueurs-en-tournoi/internal/token"
)

const testSecret = "test-secret"

// stubFetcher keeps the real host allow-list but serves canned HTML
// instead of hitting the federation site.
type stubFetcher struct {
	validator *fetch.Client
	html      string
	err       error
}

func (f *stubFetcher) ValidateURL(raw string) error { return f.validator.ValidateURL(raw) }

func (f *stubFetcher) FetchPage(ctx context.Context, url string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.html, nil
}

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	if opts.Fetcher == nil {
		opts.Fetcher = &stubFetcher{validator: fetch.New(fetch.DefaultHost), html: "<html>page</html>"}
	}
	if opts.Sync == nil {
		sync, closeDB, err := OpenSyncStore(t.TempDir())
		require.NoError(t, err)
		t.Cleanup(func() { _ = closeDB() })
		opts.Sync = sync
	}
	if opts.Secret == "" {
		opts.Secret = testSecret
	}
	return New(opts).Router()
}

func doJSON(t *testing.T, h http.Handler, method, target string, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestScrapeHostCheck(t *testing.T) {
	h := newTestServer(t, Options{})

	tests := []struct {
		url      string
		wantCode int
	}{
		{"https://attacker.com/?x=echecs.asso.fr", http.StatusForbidden},
		{"https://echecs.asso.fr.attacker.com/page", http.StatusForbidden},
		{"https://evil.com", http.StatusForbidden},
		{"https://echecs.asso.fr/Resultats.aspx?Action=Ga", http.StatusOK},
		{"https://www.echecs.asso.fr/Resultats.aspx?Action=Ls", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/scrape", fmt.Sprintf(`{"url":%q}`, tt.url), nil)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestScrapeSuccessBody(t *testing.T) {
	h := newTestServer(t, Options{
		Fetcher: &stubFetcher{validator: fetch.New(fetch.DefaultHost), html: "<html>grille</html>"},
	})

	url := "https://echecs.asso.fr/Resultats.aspx?Action=Ga"
	rec := doJSON(t, h, http.MethodPost, "/api/scrape", fmt.Sprintf(`{"url":%q}`, url), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp scrapeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "<html>grille</html>", resp.HTML)
	assert.Equal(t, url, resp.URL)
}

func TestScrapeBadRequests(t *testing.T) {
	h := newTestServer(t, Options{})

	for name, body := range map[string]string{
		"not json":    "{",
		"missing url": `{}`,
		"blank url":   `{"url":""}`,
		"not a url":   `{"url":"not a url"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/scrape", body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestScrapeUpstreamFailures(t *testing.T) {
	url := `{"url":"https://echecs.asso.fr/Resultats.aspx?Action=Ga"}`

	h := newTestServer(t, Options{
		Fetcher: &stubFetcher{validator: fetch.New(fetch.DefaultHost), err: &fetch.UpstreamError{StatusCode: 404}},
	})
	rec := doJSON(t, h, http.MethodPost, "/api/scrape", url, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h = newTestServer(t, Options{
		Fetcher: &stubFetcher{validator: fetch.New(fetch.DefaultHost), err: &fetch.UpstreamError{StatusCode: 502}},
	})
	rec = doJSON(t, h, http.MethodPost, "/api/scrape", url, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSyncPushPullRoundtrip(t *testing.T) {
	h := newTestServer(t, Options{})

	evt := model.NewEvent("Open de Printemps")
	events, err := json.Marshal([]*model.Event{evt})
	require.NoError(t, err)
	body := fmt.Sprintf(`{"clubSlug":"club-a","events":%s,"currentEventId":%q}`, events, evt.ID)
	auth := map[string]string{"X-Sync-Token": token.Generate("club-a", testSecret)}

	rec := doJSON(t, h, http.MethodPost, "/api/events/sync", body, auth)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pushResp syncPushResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pushResp))
	assert.True(t, pushResp.Success)
	assert.Equal(t, 1, pushResp.Synced)

	rec = doJSON(t, h, http.MethodGet, "/api/events/sync?clubSlug=club-a", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)

	var pullResp syncPullResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pullResp))
	require.Len(t, pullResp.Data.Events, 1)
	assert.Equal(t, evt.ID, pullResp.Data.Events[0].ID)
	assert.Equal(t, evt.ID, pullResp.Data.CurrentEventID)
}

func TestSyncAuth(t *testing.T) {
	h := newTestServer(t, Options{})
	body := `{"clubSlug":"club-a","events":[]}`

	// No token.
	rec := doJSON(t, h, http.MethodPost, "/api/events/sync", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Token minted for another slug.
	rec = doJSON(t, h, http.MethodPost, "/api/events/sync", body,
		map[string]string{"X-Sync-Token": token.Generate("club-b", testSecret)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Token minted under another secret.
	rec = doJSON(t, h, http.MethodPost, "/api/events/sync", body,
		map[string]string{"X-Sync-Token": token.Generate("club-a", "wrong")})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSyncValidation(t *testing.T) {
	h := newTestServer(t, Options{})
	auth := map[string]string{"X-Sync-Token": token.Generate("club-a", testSecret)}

	tests := map[string]string{
		"uppercase slug": `{"clubSlug":"Club-A","events":[]}`,
		"empty slug":     `{"clubSlug":"","events":[]}`,
		"long slug":      fmt.Sprintf(`{"clubSlug":%q,"events":[]}`, strings.Repeat("a", 41)),
		"missing events": `{"clubSlug":"club-a"}`,
		"events object":  `{"clubSlug":"club-a","events":{}}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/events/sync", body, auth)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := doJSON(t, h, http.MethodGet, "/api/events/sync?clubSlug=Bad!Slug", "", auth)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSyncPullUnknownSlugIsEmpty(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := doJSON(t, h, http.MethodGet, "/api/events/sync?clubSlug=never-pushed", "",
		map[string]string{"X-Sync-Token": token.Generate("never-pushed", testSecret)})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp syncPullResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Data.Events)
	assert.Empty(t, resp.Data.CurrentEventID)
}

func TestRateLimiter(t *testing.T) {
	const limit = 2
	window := 250 * time.Millisecond
	h := newTestServer(t, Options{ScrapeLimit: limit, EventsLimit: limit, Window: window})
	client := map[string]string{"X-Forwarded-For": "203.0.113.7"}

	for i := 0; i < limit; i++ {
		rec := doJSON(t, h, http.MethodPost, "/api/scrape", `{"url":"bad"}`, client)
		require.NotEqual(t, http.StatusTooManyRequests, rec.Code, "request %d should pass", i+1)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/scrape", `{"url":"bad"}`, client)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// Another client is unaffected.
	rec = doJSON(t, h, http.MethodPost, "/api/scrape", `{"url":"bad"}`,
		map[string]string{"X-Forwarded-For": "203.0.113.8"})
	assert.NotEqual(t, http.StatusTooManyRequests, rec.Code)

	// The window elapsing resets the budget.
	time.Sleep(3 * window)
	rec = doJSON(t, h, http.MethodPost, "/api/scrape", `{"url":"bad"}`, client)
	assert.NotEqual(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimiterFamiliesAreDistinct(t *testing.T) {
	const limit = 1
	h := newTestServer(t, Options{ScrapeLimit: limit, EventsLimit: limit, Window: time.Minute})
	client := map[string]string{"X-Forwarded-For": "203.0.113.9"}

	rec := doJSON(t, h, http.MethodPost, "/api/scrape", `{"url":"bad"}`, client)
	require.NotEqual(t, http.StatusTooManyRequests, rec.Code)
	rec = doJSON(t, h, http.MethodPost, "/api/scrape", `{"url":"bad"}`, client)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Exhausting the scrape budget leaves the events budget intact.
	client["X-Sync-Token"] = token.Generate("club-a", testSecret)
	rec = doJSON(t, h, http.MethodGet, "/api/events/sync?clubSlug=club-a", "", client)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, Options{})
	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSyncDisabledWithoutSecret(t *testing.T) {
	sync, closeDB, err := OpenSyncStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeDB() })

	h := New(Options{
		Fetcher: &stubFetcher{validator: fetch.New(fetch.DefaultHost)},
		Sync:    sync,
	}).Router()

	rec := doJSON(t, h, http.MethodGet, "/api/events/sync?clubSlug=club-a", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
