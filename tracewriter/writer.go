// Package tracewriter gives a simulation entity an optional, on-demand CSV
// or TSV report of its own activity: one row per notable event, led by the
// simulated time it happened at and closed with a free-text description.
package tracewriter

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/krfmo/gridsim/sim"
)

// Separator selects the field delimiter a Writer uses.
type Separator rune

const (
	Comma Separator = ','
	Tab   Separator = '\t'
	Space Separator = ' '
)

// Writer appends rows of the form "simulated_time, column..., description"
// to a file, created the first time Record is called so an entity that is
// never traced never touches the filesystem.
type Writer struct {
	path string
	sep  Separator
	file *os.File
	w    *csv.Writer
}

// New returns a Writer that will create path on first use. It does not
// open the file eagerly.
func New(path string, sep Separator) *Writer {
	return &Writer{path: path, sep: sep}
}

func (w *Writer) ensureOpen() error {
	if w.file != nil {
		return nil
	}
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("tracewriter: creating %s: %w", w.path, err)
	}
	cw := csv.NewWriter(f)
	cw.Comma = rune(w.sep)
	w.file = f
	w.w = cw
	return nil
}

// Record appends one row: the current simulated time, then columns, then
// description, in that order. The file is created lazily on first call.
func (w *Writer) Record(now sim.SimTime, columns []string, description string) error {
	if err := w.ensureOpen(); err != nil {
		return err
	}
	row := make([]string, 0, len(columns)+2)
	row = append(row, fmt.Sprintf("%.6f", float64(now)))
	row = append(row, columns...)
	row = append(row, description)
	if err := w.w.Write(row); err != nil {
		return fmt.Errorf("tracewriter: writing row to %s: %w", w.path, err)
	}
	return nil
}

// Flush flushes any buffered rows to disk. Callers should invoke this at
// end of simulation; an unflushed Writer loses its last rows on a crash.
func (w *Writer) Flush() error {
	if w.w == nil {
		return nil
	}
	w.w.Flush()
	return w.w.Error()
}

// Close flushes and closes the underlying file. Safe to call on a Writer
// that was never opened.
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}
	if err := w.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
