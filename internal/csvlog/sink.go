// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package csvlog appends sample rows to CSV files, one synchronous flush per row.
package csvlog

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/relabs-tech/sensor_logger/internal/sampling"
)

// ErrClosed is returned by WriteRow after Close.
var ErrClosed = errors.New("csvlog: sink closed")

// Options tune how a log is opened.
type Options struct {
	// Header is written once when the file is empty. Nil writes no header.
	Header []string
	// MinFreeBytes is the free space required on the target filesystem. Zero only
	// requires the filesystem not to be full.
	MinFreeBytes uint64
}

// Sink is an append-only CSV log. Rows are never buffered: every WriteRow reaches the
// disk before it returns.
type Sink struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	rows   int64
	closed bool
}

// Open opens path in append mode, creating parent directories. Failures are reported
// as sampling.KindStorageUnavailable.
func Open(path string, opts Options) (*Sink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, sampling.NewError(sampling.KindStorageUnavailable, "", "create log directory", err)
	}
	if err := checkFreeSpace(dir, opts.MinFreeBytes); err != nil {
		return nil, sampling.NewError(sampling.KindStorageUnavailable, "", "check free space", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, sampling.NewError(sampling.KindStorageUnavailable, "", "open log", err)
	}
	s := &Sink{path: path, file: f}

	if len(opts.Header) > 0 {
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, sampling.NewError(sampling.KindStorageUnavailable, "", "stat log", err)
		}
		if st.Size() == 0 {
			if err := s.writeLine(opts.Header); err != nil {
				f.Close()
				return nil, sampling.NewError(sampling.KindStorageUnavailable, "", "write header", err)
			}
		}
	}
	return s, nil
}

func checkFreeSpace(dir string, min uint64) error {
	usage, err := disk.Usage(dir)
	if err != nil {
		// Some filesystems (tmpfs in containers, FUSE) do not report usage.
		log.Printf("csvlog: free space unknown for %s: %v", dir, err)
		return nil
	}
	if usage.Free == 0 || usage.Free < min {
		return fmt.Errorf("%s: %d bytes free, need %d", dir, usage.Free, max(min, 1))
	}
	return nil
}

// WriteRow appends fields as one comma-joined line and syncs the file. Fields must not
// contain commas or newlines; they are not quoted.
func (s *Sink) WriteRow(fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return sampling.NewError(sampling.KindIO, "", "write row", ErrClosed)
	}
	if err := s.writeLine(fields); err != nil {
		return sampling.NewError(sampling.KindIO, "", "write row", err)
	}
	s.rows++
	return nil
}

// writeLine appends one line. A failed write is rolled back to the previous end of
// file so that a torn line never prefixes the next row.
func (s *Sink) writeLine(fields []string) error {
	st, err := s.file.Stat()
	if err != nil {
		return err
	}
	line := strings.Join(fields, ",") + "\n"
	if _, err := s.file.WriteString(line); err != nil {
		s.rollback(st.Size())
		return err
	}
	return s.file.Sync()
}

func (s *Sink) rollback(size int64) {
	err := s.file.Truncate(size)
	if err == nil {
		return
	}
	log.Printf("csvlog: %s: cannot drop partial row: %v", s.path, err)
	// Terminate the fragment instead; it fails to parse but later rows stay intact.
	s.file.WriteString("\n")
}

// Close releases the file. Calling Close again is a no-op.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}

// Path returns the file path of the log.
func (s *Sink) Path() string { return s.path }

// Rows returns the number of rows written through this sink, excluding the header.
func (s *Sink) Rows() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows
}
