package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rizkirmdhn/vimeo-scraper/internal/common/config"
	"github.com/rizkirmdhn/vimeo-scraper/internal/common/logger"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// ErrUnexpectedStatus is returned when the page answers with anything but 200
var ErrUnexpectedStatus = errors.New("unexpected status code")

var directLinkPattern = regexp.MustCompile(`https://vimeo\.com/\d+`)

const vimeoHost = "vimeo.com"

// Result is the outcome of one extraction.
// Links is never nil; Err holds the reason when the page could not be used.
type Result struct {
	Links []string
	Err   error
}

// ExtractorService finds Vimeo links on a single page
type ExtractorService struct {
	fetcher Fetcher
	log     *logger.ComponentLogger
}

// NewExtractorService creates a new ExtractorService
func NewExtractorService(fetcher Fetcher, log *logrus.Logger) *ExtractorService {
	return &ExtractorService{
		fetcher: fetcher,
		log:     logger.NewComponentLogger(log, "extractor"),
	}
}

// NewFetcher picks the fetcher for the configured renderer
func NewFetcher(cfg *config.ExtractorConfig, log *logrus.Logger) Fetcher {
	if cfg.Renderer == config.RendererChrome {
		return NewChromeFetcher(cfg, log)
	}
	return NewHTTPFetcher(cfg)
}

// Extract fetches url and returns the links found on it.
// Any failure yields an empty list, the cause is kept in Result.Err.
func (s *ExtractorService) Extract(ctx context.Context, url string) Result {
	links, err := s.findLinks(ctx, url)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"url": url,
		}).WithError(err).Warn("Extraction failed, returning no links")
		return Result{Links: []string{}, Err: err}
	}

	s.log.WithFields(logrus.Fields{
		"url":   url,
		"count": len(links),
	}).Info("Extraction finished")

	return Result{Links: links}
}

func (s *ExtractorService) findLinks(ctx context.Context, url string) (links []string, err error) {
	// Nothing escapes Extract, panics included
	defer func() {
		if r := recover(); r != nil {
			links, err = nil, fmt.Errorf("panic while extracting: %v", r)
		}
	}()

	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}
	if page.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, page.StatusCode)
	}

	embedded, err := EmbeddedLinks(page.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	return append(embedded, DirectLinks(page.Body)...), nil
}

// EmbeddedLinks returns the raw src of every iframe pointing at vimeo.com, in document order
func EmbeddedLinks(body []byte) ([]string, error) {
	// Scripting off, so iframes inside <noscript> are parsed as elements
	root, err := html.ParseWithOptions(bytes.NewReader(body), html.ParseOptionEnableScripting(false))
	if err != nil {
		return nil, err
	}
	doc := goquery.NewDocumentFromNode(root)

	links := []string{}
	doc.Find("iframe").Each(func(i int, iframe *goquery.Selection) {
		src, ok := iframe.Attr("src")
		if ok && strings.Contains(src, vimeoHost) {
			links = append(links, src)
		}
	})

	return links, nil
}

// DirectLinks returns every https://vimeo.com/<id> occurrence in the raw text, in order
func DirectLinks(body []byte) []string {
	matches := directLinkPattern.FindAll(body, -1)

	links := make([]string, 0, len(matches))
	for _, m := range matches {
		links = append(links, string(m))
	}

	return links
}
