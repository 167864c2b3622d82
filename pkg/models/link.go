package models

import "time"

// LinkRecord pairs a source page with one video link found on it
type LinkRecord struct {
	PageURL   string `json:"page_url"`
	VideoLink string `json:"vimeo_link"`
}

// ExtractRequest is the form submitted to the index page
type ExtractRequest struct {
	URL      *string `form:"url" json:"url" binding:"required"`
	Download *string `form:"download" json:"-"`
}

// WantsDownload reports whether the download field was submitted
func (r *ExtractRequest) WantsDownload() bool {
	return r.Download != nil
}

// ExtractionEvent is emitted after every extraction
type ExtractionEvent struct {
	ID        string    `json:"id"`
	PageURL   string    `json:"page_url"`
	Links     []string  `json:"links"`
	Count     int       `json:"count"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
