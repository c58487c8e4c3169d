package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/dgallion1/threadgest/internal/thread"
)

var csvHeader = []string{"number", "timestamp", "content", "url"}

// WriteCSV writes one row per post under a number,timestamp,content,url header.
func WriteCSV(w io.Writer, posts []thread.Post) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range posts {
		if err := cw.Write([]string{p.Number, p.Timestamp, p.Content, p.URL}); err != nil {
			return fmt.Errorf("write csv row %s: %w", p.Number, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
