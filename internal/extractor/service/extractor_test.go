package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rizkirmdhn/vimeo-scraper/internal/common/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><body>
<h1>Videos</h1>
<iframe src="https://player.vimeo.com/video/123"></iframe>
<iframe src="https://www.youtube.com/embed/abc"></iframe>
<p>Also see https://vimeo.com/987654 and https://vimeo.com/42.</p>
<iframe src="//player.vimeo.com/video/555"></iframe>
<iframe></iframe>
</body></html>`

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestService(t *testing.T, handler http.HandlerFunc) (*ExtractorService, string) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	fetcher := NewHTTPFetcher(&config.ExtractorConfig{
		UserAgent: "vimeo-scraper-test",
		Timeout:   5,
	})
	return NewExtractorService(fetcher, quietLogger()), srv.URL
}

func servePage(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, body)
	}
}

func TestExtract_IframesBeforeDirectLinks(t *testing.T) {
	svc, url := newTestService(t, servePage(samplePage))

	res := svc.Extract(context.Background(), url)

	require.NoError(t, res.Err)
	assert.Equal(t, []string{
		"https://player.vimeo.com/video/123",
		"//player.vimeo.com/video/555",
		"https://vimeo.com/987654",
		"https://vimeo.com/42",
	}, res.Links)
}

func TestExtract_NoDeduplication(t *testing.T) {
	page := `<iframe src="https://vimeo.com/123"></iframe>`
	svc, url := newTestService(t, servePage(page))

	res := svc.Extract(context.Background(), url)

	require.NoError(t, res.Err)
	assert.Equal(t, []string{"https://vimeo.com/123", "https://vimeo.com/123"}, res.Links)
}

func TestExtract_NonOKStatusIsEmpty(t *testing.T) {
	for _, code := range []int{http.StatusNotFound, http.StatusInternalServerError, http.StatusNoContent} {
		svc, url := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
			io.WriteString(w, `<iframe src="https://vimeo.com/1"></iframe>`)
		})

		res := svc.Extract(context.Background(), url)

		assert.NotNil(t, res.Links)
		assert.Empty(t, res.Links, "status %d", code)
		assert.True(t, errors.Is(res.Err, ErrUnexpectedStatus), "status %d", code)
	}
}

func TestExtract_FetchErrorIsEmpty(t *testing.T) {
	svc := NewExtractorService(NewHTTPFetcher(&config.ExtractorConfig{Timeout: 1}), quietLogger())

	for _, url := range []string{"not a url", "http://127.0.0.1:1/unreachable", ""} {
		res := svc.Extract(context.Background(), url)

		assert.NotNil(t, res.Links)
		assert.Empty(t, res.Links, "url %q", url)
		assert.Error(t, res.Err, "url %q", url)
	}
}

func TestExtract_SendsUserAgent(t *testing.T) {
	var gotUA string
	svc, url := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	})

	res := svc.Extract(context.Background(), url)

	require.NoError(t, res.Err)
	assert.Empty(t, res.Links)
	assert.Equal(t, "vimeo-scraper-test", gotUA)
}

type panicFetcher struct{}

func (panicFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	panic("boom")
}

func TestExtract_RecoversFromPanic(t *testing.T) {
	svc := NewExtractorService(panicFetcher{}, quietLogger())

	res := svc.Extract(context.Background(), "http://example.com")

	assert.Empty(t, res.Links)
	assert.ErrorContains(t, res.Err, "boom")
}

func TestEmbeddedLinks(t *testing.T) {
	tests := []struct {
		name string
		html string
		want []string
	}{
		{
			name: "relative src kept verbatim",
			html: `<iframe src="/embed?host=vimeo.com&id=1"></iframe>`,
			want: []string{"/embed?host=vimeo.com&id=1"},
		},
		{
			name: "non vimeo ignored",
			html: `<iframe src="https://example.com/x"></iframe>`,
			want: []string{},
		},
		{
			name: "iframe without src ignored",
			html: `<iframe title="vimeo.com"></iframe>`,
			want: []string{},
		},
		{
			name: "iframe inside noscript",
			html: `<noscript><iframe src="https://player.vimeo.com/video/77"></iframe></noscript>`,
			want: []string{"https://player.vimeo.com/video/77"},
		},
		{
			name: "lazy loaded embed with noscript fallback",
			html: `<iframe data-src="https://player.vimeo.com/video/1"></iframe>` +
				`<noscript><iframe src="https://player.vimeo.com/video/1"></iframe></noscript>` +
				`<iframe src="https://vimeo.com/2"></iframe>`,
			want: []string{"https://player.vimeo.com/video/1", "https://vimeo.com/2"},
		},
		{
			name: "empty document",
			html: ``,
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EmbeddedLinks([]byte(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirectLinks(t *testing.T) {
	body := []byte(`https://vimeo.com/1 http://vimeo.com/2 https://vimeo.com/abc https://vimeoXcom/3 https://vimeo.com/44x`)

	assert.Equal(t, []string{"https://vimeo.com/1", "https://vimeo.com/44"}, DirectLinks(body))
	assert.Empty(t, DirectLinks(nil))
}

func TestNewHTTPFetcher_TimeoutInSeconds(t *testing.T) {
	assert.Equal(t, 30*time.Second, NewHTTPFetcher(&config.ExtractorConfig{Timeout: 30}).client.Timeout)
	assert.Zero(t, NewHTTPFetcher(&config.ExtractorConfig{}).client.Timeout)
}

func TestNewFetcher(t *testing.T) {
	_, ok := NewFetcher(&config.ExtractorConfig{Renderer: config.RendererHTTP}, quietLogger()).(*HTTPFetcher)
	assert.True(t, ok)

	_, ok = NewFetcher(&config.ExtractorConfig{Renderer: config.RendererChrome}, quietLogger()).(*ChromeFetcher)
	assert.True(t, ok)
}
