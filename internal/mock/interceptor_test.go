package mock

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomyan/uiverify/internal/chrome"
	"github.com/tomyan/uiverify/internal/harness"
	"github.com/tomyan/uiverify/internal/logging"
)

type fulfilled struct {
	status  int
	headers []chrome.HeaderEntry
	body    string
}

type fakePage struct {
	navigated bool
	enableErr error

	mu        sync.Mutex
	patterns  []string
	paused    chan chrome.PausedRequest
	fulfilled map[string]fulfilled
	continued []string
	failed    map[string]string
	records   []string
	settled   chan string
}

func newFakePage() *fakePage {
	return &fakePage{
		fulfilled: make(map[string]fulfilled),
		failed:    make(map[string]string),
		settled:   make(chan string, 16),
	}
}

func (p *fakePage) Navigated() bool { return p.navigated }

func (p *fakePage) EnableFetch(ctx context.Context, patterns []string) (<-chan chrome.PausedRequest, func(), error) {
	if p.enableErr != nil {
		return nil, nil, p.enableErr
	}
	p.patterns = patterns
	p.paused = make(chan chrome.PausedRequest)
	var once sync.Once
	return p.paused, func() { once.Do(func() { close(p.paused) }) }, nil
}

func (p *fakePage) FulfillRequest(ctx context.Context, requestID string, status int, headers []chrome.HeaderEntry, body []byte) error {
	p.mu.Lock()
	p.fulfilled[requestID] = fulfilled{status: status, headers: headers, body: string(body)}
	p.mu.Unlock()
	p.settled <- requestID
	return nil
}

func (p *fakePage) ContinueRequest(ctx context.Context, requestID string) error {
	p.mu.Lock()
	p.continued = append(p.continued, requestID)
	p.mu.Unlock()
	p.settled <- requestID
	return nil
}

func (p *fakePage) FailRequest(ctx context.Context, requestID string, reason string) error {
	p.mu.Lock()
	p.failed[requestID] = reason
	p.mu.Unlock()
	p.settled <- requestID
	return nil
}

func (p *fakePage) Record(source, text string) {
	p.mu.Lock()
	p.records = append(p.records, source+": "+text)
	p.mu.Unlock()
}

// send pauses a request and waits until the interceptor settles it.
func (p *fakePage) send(t *testing.T, id, method, url string) {
	t.Helper()
	p.paused <- chrome.PausedRequest{RequestID: id, Method: method, URL: url}
	require.Equal(t, id, <-p.settled)
}

func newTestInterceptor(t *testing.T) *Interceptor {
	t.Helper()
	return NewInterceptor(NewRouter("http://localhost:5173"), logging.Discard())
}

func TestInterceptorFulfillsMatchingRequests(t *testing.T) {
	ic := newTestInterceptor(t)
	items := []map[string]interface{}{{"id": "uuid-1", "name": "Oil Filter", "stock": 2}}
	require.NoError(t, ic.Handle("/items*", Static(JSON(items))))

	page := newFakePage()
	require.NoError(t, ic.Install(context.Background(), page))
	defer ic.Stop()

	assert.Equal(t, []string{"http://localhost:5173/items*"}, page.patterns)

	page.send(t, "1", "GET", "http://localhost:5173/items?page=1")
	page.send(t, "2", "GET", "http://localhost:5173/itemsets/extra")

	got := page.fulfilled["1"]
	assert.Equal(t, 200, got.status)
	assert.JSONEq(t, `[{"id":"uuid-1","name":"Oil Filter","stock":2}]`, got.body)
	assert.Contains(t, got.headers, chrome.HeaderEntry{Name: "Content-Type", Value: "application/json"})

	// Paused by the coarse browser pattern but rejected by the glob
	assert.Equal(t, []string{"2"}, page.continued)
	assert.Equal(t, Stats{Fulfilled: 1, Continued: 1}, ic.Stats())
	assert.NoError(t, ic.Err())
}

func TestInterceptorPassesRequestToResponder(t *testing.T) {
	ic := newTestInterceptor(t)
	var seen Request
	require.NoError(t, ic.Handle("**/echo", func(ctx context.Context, req Request) (Response, error) {
		seen = req
		return Status(204), nil
	}))

	page := newFakePage()
	require.NoError(t, ic.Install(context.Background(), page))
	defer ic.Stop()

	page.paused <- chrome.PausedRequest{
		RequestID: "7", Method: "POST", URL: "http://h/echo",
		Headers: map[string]string{"X": "y"}, PostData: "{}", ResourceType: "Fetch",
	}
	<-page.settled

	assert.Equal(t, Request{Method: "POST", URL: "http://h/echo", Headers: map[string]string{"X": "y"}, PostData: "{}", ResourceType: "Fetch"}, seen)
	assert.Equal(t, 204, page.fulfilled["7"].status)
}

func TestInterceptorAllowsCrossOriginPage(t *testing.T) {
	ic := newTestInterceptor(t)
	require.NoError(t, ic.Handle("**/rest/v1/items*", Static(JSON([]string{"Aceite Motor"}).WithHeader("Content-Range", "0-0/1"))))
	require.NoError(t, ic.Handle("**/same*", Static(JSON("ok"))))
	require.NoError(t, ic.Handle("**/own-cors*", Static(JSON("ok").WithHeader("Access-Control-Allow-Origin", "*"))))

	page := newFakePage()
	require.NoError(t, ic.Install(context.Background(), page))
	defer ic.Stop()

	origin := map[string]string{"origin": "http://localhost:5173"}
	for id, url := range map[string]string{
		"cross": "https://x.supabase.co/rest/v1/items?select=*",
		"same":  "http://localhost:5173/same",
		"own":   "https://x.supabase.co/own-cors",
	} {
		page.paused <- chrome.PausedRequest{RequestID: id, Method: "GET", URL: url, Headers: origin}
		require.Equal(t, id, <-page.settled)
	}

	cross := page.fulfilled["cross"].headers
	assert.Contains(t, cross, chrome.HeaderEntry{Name: "Access-Control-Allow-Origin", Value: "http://localhost:5173"})
	assert.Contains(t, cross, chrome.HeaderEntry{Name: "Access-Control-Allow-Credentials", Value: "true"})
	assert.Contains(t, cross, chrome.HeaderEntry{Name: "Vary", Value: "Origin"})
	assert.Contains(t, cross, chrome.HeaderEntry{Name: "Access-Control-Expose-Headers", Value: "Content-Range"})
	assert.Contains(t, cross, chrome.HeaderEntry{Name: "Content-Range", Value: "0-0/1"})

	assert.Equal(t, []chrome.HeaderEntry{{Name: "Content-Type", Value: "application/json"}}, page.fulfilled["same"].headers)
	assert.Equal(t, []chrome.HeaderEntry{
		{Name: "Access-Control-Allow-Origin", Value: "*"},
		{Name: "Content-Type", Value: "application/json"},
	}, page.fulfilled["own"].headers)
}

func TestInterceptorAnswersPreflight(t *testing.T) {
	ic := newTestInterceptor(t)
	called := false
	require.NoError(t, ic.Handle("**/rest/v1/**", func(context.Context, Request) (Response, error) {
		called = true
		return JSON("unused"), nil
	}))

	page := newFakePage()
	require.NoError(t, ic.Install(context.Background(), page))
	defer ic.Stop()

	page.paused <- chrome.PausedRequest{
		RequestID: "pre", Method: "OPTIONS", URL: "https://x.supabase.co/rest/v1/items",
		Headers: map[string]string{
			"Origin":                         "http://localhost:5173",
			"Access-Control-Request-Method":  "GET",
			"Access-Control-Request-Headers": "apikey,authorization",
		},
	}
	require.Equal(t, "pre", <-page.settled)

	got := page.fulfilled["pre"]
	assert.Equal(t, 204, got.status)
	assert.Empty(t, got.body)
	assert.Contains(t, got.headers, chrome.HeaderEntry{Name: "Access-Control-Allow-Origin", Value: "http://localhost:5173"})
	assert.Contains(t, got.headers, chrome.HeaderEntry{Name: "Access-Control-Allow-Headers", Value: "apikey,authorization"})
	assert.Contains(t, got.headers, chrome.HeaderEntry{Name: "Access-Control-Allow-Credentials", Value: "true"})
	assert.False(t, called)
	assert.Equal(t, Stats{Fulfilled: 1}, ic.Stats())
}

func TestInterceptorResponderErrorFailsRequest(t *testing.T) {
	ic := newTestInterceptor(t)
	boom := errors.New("fixture missing")
	require.NoError(t, ic.Handle("**/broken*", func(context.Context, Request) (Response, error) {
		return Response{}, boom
	}))
	require.NoError(t, ic.Handle("**/panics*", func(context.Context, Request) (Response, error) {
		panic("bad fixture")
	}))

	page := newFakePage()
	require.NoError(t, ic.Install(context.Background(), page))
	defer ic.Stop()

	page.send(t, "a", "GET", "http://h/broken")
	page.send(t, "b", "GET", "http://h/panics")

	assert.Equal(t, chrome.ErrorReasonFailed, page.failed["a"])
	assert.Equal(t, chrome.ErrorReasonFailed, page.failed["b"])
	assert.Empty(t, page.fulfilled)
	assert.Equal(t, 2, ic.Stats().Failed)

	var mockErr *harness.NetworkMockError
	require.ErrorAs(t, ic.Err(), &mockErr)
	assert.Equal(t, "**/broken*", mockErr.Pattern)
	assert.ErrorIs(t, ic.Err(), boom)
	require.Len(t, ic.Errors(), 2)
	assert.Contains(t, ic.Errors()[1].Error(), "responder panic: bad fixture")
	assert.Len(t, page.records, 2)
}

func TestInterceptorUnencodableBodyFailsRequest(t *testing.T) {
	ic := newTestInterceptor(t)
	require.NoError(t, ic.Handle("**/chan", Static(JSON(make(chan int)))))

	page := newFakePage()
	require.NoError(t, ic.Install(context.Background(), page))
	defer ic.Stop()

	page.send(t, "c", "GET", "http://h/chan")
	assert.Contains(t, page.failed, "c")
	assert.Equal(t, harness.KindMock, harness.Kind(ic.Err()))
}

func TestInstallAfterNavigationFails(t *testing.T) {
	ic := newTestInterceptor(t)
	require.NoError(t, ic.Handle("**/x", Static(Status(200))))

	page := newFakePage()
	page.navigated = true

	err := ic.Install(context.Background(), page)
	var sessErr *harness.SessionError
	require.ErrorAs(t, err, &sessErr)
	assert.Contains(t, err.Error(), "before the first navigation")
}

func TestHandleAfterInstallFails(t *testing.T) {
	ic := newTestInterceptor(t)
	page := newFakePage()
	require.NoError(t, ic.Install(context.Background(), page))
	defer ic.Stop()

	assert.ErrorIs(t, ic.Handle("**/late", Static(Status(200))), ErrInstalled)

	var sessErr *harness.SessionError
	assert.ErrorAs(t, ic.Install(context.Background(), page), &sessErr)
}

func TestInstallWithoutRulesSkipsFetch(t *testing.T) {
	ic := newTestInterceptor(t)
	page := newFakePage()
	require.NoError(t, ic.Install(context.Background(), page))
	assert.Nil(t, page.paused)
	ic.Stop()
}

func TestInstallEnableFetchError(t *testing.T) {
	ic := newTestInterceptor(t)
	require.NoError(t, ic.Handle("**/x", Static(Status(200))))
	page := newFakePage()
	page.enableErr = errors.New("target closed")

	err := ic.Install(context.Background(), page)
	assert.Equal(t, harness.KindSession, harness.Kind(err))
}
