package fetcher

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	html    string
	err     error
	block   bool
	renders []string
	waits   []string
	closed  int
}

func (f *fakeRenderer) Render(ctx context.Context, url, waitFor string) (string, error) {
	f.renders = append(f.renders, url)
	f.waits = append(f.waits, waitFor)
	if f.block {
		<-ctx.Done()
		return "", errors.New("navigation aborted")
	}
	return f.html, f.err
}

func (f *fakeRenderer) Close() error {
	f.closed++
	return nil
}

func newTestSession(r *fakeRenderer) (*BrowserSession, *int) {
	launches := 0
	s := NewSession(Options{Engine: EngineChromedp, Headless: true, Timeout: time.Second})
	s.newRenderer = func(Options) (Renderer, error) {
		launches++
		return r, nil
	}
	return s, &launches
}

func TestBrowserLaunchesLazilyOnce(t *testing.T) {
	r := &fakeRenderer{html: `<html><body><div id="main"><h2>Hi</h2></div></body></html>`}
	s, launches := newTestSession(r)

	assert.Zero(t, *launches, "no browser before the first dynamic fetch")

	for i := 0; i < 2; i++ {
		doc, err := s.FetchDynamic(context.Background(), "https://www.infolomba.id/?page=1", DynamicOptions{WaitFor: "#main"})
		require.NoError(t, err)
		assert.Equal(t, "Hi", doc.Find("#main h2").Text())
	}

	assert.Equal(t, 1, *launches)
	assert.Equal(t, []string{"#main", "#main"}, r.waits)
	require.NoError(t, s.Close())
	assert.Equal(t, 1, r.closed)
}

func TestCloseIsIdempotentAndBlocksFetches(t *testing.T) {
	r := &fakeRenderer{html: "<html></html>"}
	s, launches := newTestSession(r)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Zero(t, r.closed, "no browser was ever launched")

	_, err := s.FetchDynamic(context.Background(), "https://x.test", DynamicOptions{})
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.FetchStatic(context.Background(), "https://x.test")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Zero(t, *launches)
}

func TestFetchDynamicTimeout(t *testing.T) {
	r := &fakeRenderer{block: true}
	s, _ := newTestSession(r)
	defer s.Close()

	start := time.Now()
	_, err := s.FetchDynamic(context.Background(), "https://slow.test", DynamicOptions{Timeout: 20 * time.Millisecond})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetchDynamicLaunchFailure(t *testing.T) {
	s := NewSession(Options{Engine: EngineRod})
	s.newRenderer = func(Options) (Renderer, error) {
		return nil, errors.New("chrome not found")
	}

	_, err := s.FetchDynamic(context.Background(), "https://x.test", DynamicOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "launch rod browser")
	assert.NoError(t, s.Close())
}

func TestUnknownEngine(t *testing.T) {
	_, err := launchRenderer(Options{Engine: "selenium"})
	assert.ErrorContains(t, err, "unknown browser engine")
}

func TestFetchStatic(t *testing.T) {
	s := NewSession(Options{UserAgent: "infortic-test", Timeout: time.Second})
	defer s.Close()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "https://luarkampus.id/beasiswa",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "infortic-test", req.Header.Get("User-Agent"))
			return httpmock.NewStringResponse(http.StatusOK, "<html>page "+req.URL.Query().Get("page")+"</html>"), nil
		})
	s.Static().WithTransport(transport)

	// The same URL can be fetched twice.
	for i := 0; i < 2; i++ {
		body, err := s.FetchStatic(context.Background(), "https://luarkampus.id/beasiswa?page=2")
		require.NoError(t, err)
		assert.Equal(t, "<html>page 2</html>", body)
	}
	assert.Equal(t, 2, transport.GetTotalCallCount())
}

func TestFetchStaticHTTPError(t *testing.T) {
	s := NewSession(Options{Timeout: time.Second})
	defer s.Close()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodGet, "https://luarkampus.id/beasiswa",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, "down"))
	s.Static().WithTransport(transport)

	_, err := s.FetchStatic(context.Background(), "https://luarkampus.id/beasiswa")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestFetchStaticCancelledContext(t *testing.T) {
	s := NewSession(Options{Timeout: time.Second})
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FetchStatic(ctx, "https://luarkampus.id/beasiswa")
	assert.ErrorIs(t, err, context.Canceled)
}
