package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rizkirmdhn/vimeo-scraper/pkg/models"
)

const (
	FileName    = "vimeo_links.csv"
	ContentType = "text/csv"
)

// Header is the first row of every export
var Header = []string{"page_url", "vimeo_link"}

// Records pairs pageURL with each link, keeping the link order
func Records(pageURL string, links []string) []models.LinkRecord {
	records := make([]models.LinkRecord, 0, len(links))
	for _, link := range links {
		records = append(records, models.LinkRecord{
			PageURL:   pageURL,
			VideoLink: link,
		})
	}
	return records
}

// WriteCSV writes the header followed by one row per record
func WriteCSV(w io.Writer, records []models.LinkRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	return writeRows(cw, records)
}

// AppendCSV appends records to the file at path, writing the header only into a new or empty file
func AppendCSV(path string, records []models.LinkRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open csv file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat csv file: %w", err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(Header); err != nil {
			return fmt.Errorf("failed to write csv header: %w", err)
		}
	}
	if err := writeRows(cw, records); err != nil {
		return err
	}

	return f.Sync()
}

func writeRows(cw *csv.Writer, records []models.LinkRecord) error {
	for _, r := range records {
		if err := cw.Write([]string{r.PageURL, r.VideoLink}); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}
