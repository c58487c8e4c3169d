package export

import (
	"bufio"
	"io"

	"github.com/dgallion1/threadgest/internal/thread"
)

// WriteText writes posts one per line in the batch line format.
func WriteText(w io.Writer, posts []thread.Post) error {
	bw := bufio.NewWriter(w)
	for _, p := range posts {
		bw.WriteString(p.Line())
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
