package snapshot

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"tse/ik"
)

var csvHeader = []string{
	"time", "session",
	"act0", "act1", "act2", "act3", "act4", "act5",
	"x", "y", "z", "yaw", "pitch", "roll",
	"saturated",
}

// CSVRecorder appends one row per snapshot to a results file.
type CSVRecorder struct {
	mu     sync.Mutex
	w      *csv.Writer
	closer io.Closer
}

// NewCSVRecorder writes to w, starting with a header row.
func NewCSVRecorder(w io.Writer) (*CSVRecorder, error) {
	r := &CSVRecorder{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	if err := r.w.Write(csvHeader); err != nil {
		return nil, err
	}
	r.w.Flush()
	return r, r.w.Error()
}

// CreateCSVFile truncates path and records into it.
func CreateCSVFile(path string) (*CSVRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "creating results file")
	}
	r, err := NewCSVRecorder(f)
	if err != nil {
		return nil, multierr.Append(err, f.Close())
	}
	return r, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Record writes and flushes one row.
func (r *CSVRecorder) Record(_ context.Context, s Snapshot) error {
	row := make([]string, 0, len(csvHeader))
	row = append(row, s.Time.UTC().Format(time.RFC3339Nano), s.Session)
	for i := 0; i < ik.Actuators; i++ {
		if i < len(s.Commands) {
			row = append(row, formatFloat(s.Commands[i]))
		} else {
			row = append(row, "")
		}
	}
	for _, v := range s.Pose.Slice() {
		row = append(row, formatFloat(v))
	}
	row = append(row, strconv.FormatBool(s.Saturated))

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.w.Write(row); err != nil {
		return err
	}
	r.w.Flush()
	return r.w.Error()
}

// Close flushes and closes the underlying writer when it is closable.
func (r *CSVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w.Flush()
	err := r.w.Error()
	if r.closer != nil {
		err = multierr.Append(err, r.closer.Close())
	}
	return err
}
