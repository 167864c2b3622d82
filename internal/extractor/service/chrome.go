package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rizkirmdhn/vimeo-scraper/internal/common/config"
	"github.com/sirupsen/logrus"
)

// ChromeFetcher renders pages in headless Chrome so script-inserted iframes are visible
type ChromeFetcher struct {
	config *config.ExtractorConfig
	log    *logrus.Logger
}

// NewChromeFetcher creates a fetcher backed by chromedp
func NewChromeFetcher(cfg *config.ExtractorConfig, log *logrus.Logger) *ChromeFetcher {
	return &ChromeFetcher{
		config: cfg,
		log:    log,
	}
}

// Fetch navigates to url and returns the rendered document
func (f *ChromeFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if timeout := f.config.TimeoutDuration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	allocCtx, allocCancel := f.createChromeContext(ctx)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(f.log.Debugf))
	defer browserCancel()

	var (
		mu     sync.Mutex
		status int
	)

	// The first document response belongs to the top frame, iframes follow it
	chromedp.ListenTarget(browserCtx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			mu.Lock()
			if status == 0 {
				status = int(e.Response.Status)
			}
			mu.Unlock()
		}
	})

	var html string
	start := time.Now()
	err := chromedp.Run(browserCtx,
		network.Enable(),
		network.SetBlockedURLS([]string{"*.png", "*.jpg", "*.jpeg", "*.gif"}),
		chromedp.Navigate(url),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render page: %w", err)
	}

	f.log.WithFields(logrus.Fields{
		"component": "chrome_fetcher",
		"url":       url,
		"duration":  time.Since(start).String(),
	}).Debug("Page rendered")

	mu.Lock()
	defer mu.Unlock()

	return &Page{
		StatusCode: status,
		Body:       []byte(html),
	}, nil
}

func (f *ChromeFetcher) createChromeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(f.config.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)
	return chromedp.NewExecAllocator(ctx, opts...)
}
