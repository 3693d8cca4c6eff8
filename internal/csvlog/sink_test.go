// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package csvlog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/relabs-tech/sensor_logger/internal/sampling"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	s := strings.TrimSuffix(string(b), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestOpenCreatesDirectoriesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "BaroGps", "nested", "Barometer.csv")

	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.WriteRow([]string{"1", "1000", "x", "1013.25"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen: append mode keeps the earlier row.
	s2, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if err := s2.WriteRow([]string{"1", "5000", "y", "1000"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	lines := readLines(t, path)
	want := []string{"1,1000,x,1013.25", "1,5000,y,1000"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
	if s2.Rows() != 1 {
		t.Errorf("expected 1 row through second sink, got %d", s2.Rows())
	}
}

func TestRowIsOnDiskBeforeWriteReturns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "GPS.csv")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	for i := 1; i <= 3; i++ {
		if err := s.WriteRow([]string{fmt.Sprint(i)}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if got := len(readLines(t, path)); got != i {
			t.Fatalf("after %d writes file has %d lines", i, got)
		}
	}
}

func TestHeaderWrittenOnlyForEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Light.csv")
	header := []string{"sequenceNumber", "lux"}

	for i := 0; i < 2; i++ {
		s, err := Open(path, Options{Header: header})
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := s.WriteRow([]string{fmt.Sprint(i + 1), "12.5"}); err != nil {
			t.Fatalf("write: %v", err)
		}
		s.Close()
	}

	lines := readLines(t, path)
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %q", lines)
	}
	if lines[0] != "sequenceNumber,lux" {
		t.Errorf("unexpected header %q", lines[0])
	}
}

func TestCloseIsIdempotentAndWriteAfterCloseFails(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "x.csv"), Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	err = s.WriteRow([]string{"1"})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if sampling.KindOf(err) != sampling.KindIO {
		t.Fatalf("expected io kind, got %v", sampling.KindOf(err))
	}
}

func TestOpenFailsWhenDirectoryCannotBeCreated(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	_, err := Open(filepath.Join(blocker, "Barometer.csv"), Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if sampling.KindOf(err) != sampling.KindStorageUnavailable {
		t.Fatalf("expected storage unavailable, got %v (%v)", sampling.KindOf(err), err)
	}
}

func TestOpenFailsWhenNotEnoughFreeSpace(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "x.csv"), Options{MinFreeBytes: ^uint64(0)})
	if err == nil {
		t.Skip("filesystem does not report usage")
	}
	if sampling.KindOf(err) != sampling.KindStorageUnavailable {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.csv")
	s, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	row := []string{"aaaaaaaa", "bbbbbbbb", "cccccccc"}
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if err := s.WriteRow(row); err != nil {
					t.Errorf("write: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	lines := readLines(t, path)
	if len(lines) != 160 {
		t.Fatalf("expected 160 lines, got %d", len(lines))
	}
	for i, l := range lines {
		if l != "aaaaaaaa,bbbbbbbb,cccccccc" {
			t.Fatalf("line %d corrupted: %q", i, l)
		}
	}
}
