// Package workload reads Standard Workload Format job traces and turns
// them into submission records a topology can play back. SWF files are
// whitespace-separated columns with ';' comment lines; only a handful of
// the eighteen standard columns matter here, and their indices are
// configurable because real traces disagree on which extra columns they
// carry.
package workload

import (
	"archive/zip"
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ColumnLayout names which whitespace-separated field (0-indexed) holds
// each value this package needs. StandardColumns holds the SWF
// standard's own indices.
type ColumnLayout struct {
	JobID            int
	SubmitTime       int
	ActualRuntime    int
	NumProc          int
	RequestedRuntime int
	RequestedNumProc int
}

// StandardColumns is the column layout defined by the Standard Workload
// Format specification.
var StandardColumns = ColumnLayout{
	JobID:            0,
	SubmitTime:       1,
	ActualRuntime:    3,
	NumProc:          4,
	RequestedNumProc: 7,
	RequestedRuntime: 8,
}

// Job is one parsed SWF record, with a resolved requested runtime (falling
// back to actual runtime when the trace leaves it as -1, as the format
// allows) and requested processor count (same fallback).
type Job struct {
	JobID            int
	SubmitTime       float64
	ActualRuntime    float64
	NumProc          int
	RequestedRuntime float64
	RequestedNumProc int
}

// WorkUnits returns the job's simulated length: requested runtime scaled
// by the processing-element rating of the resource it will run on.
func (j Job) WorkUnits(peRating float64) float64 {
	return j.RequestedRuntime * peRating
}

// ReadTrace opens path (plain text, gzip, or zip, detected from the
// extension) and parses it as an SWF trace using cols as the column
// layout. A zip archive must contain exactly one file.
func ReadTrace(path string, cols ColumnLayout) ([]Job, error) {
	r, err := openTrace(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ParseTrace(r, cols)
}

func openTrace(path string) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("workload: opening %s: %w", path, err)
		}
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("workload: gunzipping %s: %w", path, err)
		}
		return struct {
			io.Reader
			io.Closer
		}{gz, closerFunc(func() error { gz.Close(); return f.Close() })}, nil
	case strings.HasSuffix(path, ".zip"):
		zr, err := zip.OpenReader(path)
		if err != nil {
			return nil, fmt.Errorf("workload: opening zip %s: %w", path, err)
		}
		if len(zr.File) != 1 {
			zr.Close()
			return nil, fmt.Errorf("workload: zip %s must contain exactly one file, has %d", path, len(zr.File))
		}
		rc, err := zr.File[0].Open()
		if err != nil {
			zr.Close()
			return nil, fmt.Errorf("workload: opening %s in zip: %w", zr.File[0].Name, err)
		}
		return struct {
			io.Reader
			io.Closer
		}{rc, closerFunc(func() error { rc.Close(); return zr.Close() })}, nil
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("workload: opening %s: %w", path, err)
		}
		return f, nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// ParseTrace reads an SWF trace from r using cols as the column layout.
// Blank lines and ';'-prefixed comment lines are skipped.
func ParseTrace(r io.Reader, cols ColumnLayout) ([]Job, error) {
	var jobs []Job
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Fields(line)
		maxIdx := cols.JobID
		for _, idx := range []int{cols.SubmitTime, cols.ActualRuntime, cols.NumProc, cols.RequestedRuntime, cols.RequestedNumProc} {
			if idx > maxIdx {
				maxIdx = idx
			}
		}
		if len(fields) <= maxIdx {
			return nil, fmt.Errorf("workload: line %d: expected at least %d columns, got %d", lineNo, maxIdx+1, len(fields))
		}

		job, err := parseJob(fields, cols)
		if err != nil {
			return nil, fmt.Errorf("workload: line %d: %w", lineNo, err)
		}
		jobs = append(jobs, job)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("workload: scanning trace: %w", err)
	}
	return jobs, nil
}

func parseJob(fields []string, cols ColumnLayout) (Job, error) {
	jobID, err := strconv.Atoi(fields[cols.JobID])
	if err != nil {
		return Job{}, fmt.Errorf("parsing job id %q: %w", fields[cols.JobID], err)
	}
	submitTime, err := strconv.ParseFloat(fields[cols.SubmitTime], 64)
	if err != nil {
		return Job{}, fmt.Errorf("parsing submit time %q: %w", fields[cols.SubmitTime], err)
	}
	actualRuntime, err := strconv.ParseFloat(fields[cols.ActualRuntime], 64)
	if err != nil {
		return Job{}, fmt.Errorf("parsing actual runtime %q: %w", fields[cols.ActualRuntime], err)
	}
	numProc, err := strconv.Atoi(fields[cols.NumProc])
	if err != nil {
		return Job{}, fmt.Errorf("parsing num proc %q: %w", fields[cols.NumProc], err)
	}
	requestedRuntime, err := strconv.ParseFloat(fields[cols.RequestedRuntime], 64)
	if err != nil {
		return Job{}, fmt.Errorf("parsing requested runtime %q: %w", fields[cols.RequestedRuntime], err)
	}
	requestedNumProc, err := strconv.Atoi(fields[cols.RequestedNumProc])
	if err != nil {
		return Job{}, fmt.Errorf("parsing requested num proc %q: %w", fields[cols.RequestedNumProc], err)
	}

	// SWF uses -1 for "not requested"; fall back to the actual value.
	if requestedRuntime < 0 {
		requestedRuntime = actualRuntime
	}
	if requestedNumProc < 0 {
		requestedNumProc = numProc
	}

	return Job{
		JobID:            jobID,
		SubmitTime:       submitTime,
		ActualRuntime:    actualRuntime,
		NumProc:          numProc,
		RequestedRuntime: requestedRuntime,
		RequestedNumProc: requestedNumProc,
	}, nil
}
