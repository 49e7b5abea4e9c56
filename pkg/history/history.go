// Package history is the append-only store of executed commands. Ids
// are dense and strictly increasing from 1, assigned only by Add, which
// is safe against concurrent callers.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"bashpipe/pkg/checks"
	"bashpipe/pkg/textutil"
)

// ErrEmpty is returned by Last when no command has been recorded.
var ErrEmpty = errors.New("command history is empty")

// Record is an immutable snapshot of one executed command. The sudo
// prefix is stripped from Command into the Sudo flag; Output holds the
// filtered, newline-joined command output.
type Record struct {
	ID        int    `json:"id"`
	Command   string `json:"command"`
	Sudo      bool   `json:"sudo"`
	Directory string `json:"directory"`
	Output    string `json:"output"`
	ExitCode  int    `json:"exit_code"`
}

// History owns the id counter and the records keyed by id.
type History struct {
	mu      sync.Mutex
	records map[int]Record
	nextID  int
}

// New creates an empty history.
func New() *History {
	return &History{
		records: make(map[int]Record),
		nextID:  1,
	}
}

// Add builds a record from the raw command result, assigns the next id
// atomically with insertion, and returns the stored record. The raw
// output is normalized through the same split/filter rules the live
// pipeline uses.
func (h *History) Add(command, directory, rawOutput string, exitCode int) Record {
	rec := Record{
		Command:   command,
		Directory: directory,
		Output:    normalizeOutput(rawOutput),
		ExitCode:  exitCode,
	}
	if strings.HasPrefix(rec.Command, "sudo ") {
		rec.Sudo = true
		rec.Command = strings.TrimPrefix(rec.Command, "sudo ")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	rec.ID = h.nextID
	h.nextID++
	h.records[rec.ID] = rec
	return rec
}

// Get returns the record with the given id.
func (h *History) Get(id int) (Record, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.records[id]
	return rec, ok
}

// Last returns the most recently added record, or ErrEmpty.
func (h *History) Last() (Record, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.nextID == 1 {
		return Record{}, ErrEmpty
	}
	return h.records[h.nextID-1], nil
}

// Len returns the number of recorded commands.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Records returns all records in id order.
func (h *History) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Record, 0, len(h.records))
	for id := 1; id < h.nextID; id++ {
		out = append(out, h.records[id])
	}
	return out
}

// Save writes the history to path as JSON for session replay.
func (h *History) Save(path string) error {
	data, err := json.MarshalIndent(h.Records(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// Load reads a history previously written by Save. The id counter is
// positioned after the highest loaded id.
func Load(path string) (*History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse history: %w", err)
	}

	h := New()
	for _, rec := range records {
		h.records[rec.ID] = rec
		if rec.ID >= h.nextID {
			h.nextID = rec.ID + 1
		}
	}
	return h, nil
}

// normalizeOutput turns the raw captured text of one command into the
// filtered, newline-joined form stored on the record. It mirrors the
// live pipeline's splitting, then drops the same noise, but keeps
// prompt lines: the stored output is the full transcript.
func normalizeOutput(raw string) string {
	var pieces []string
	for _, piece := range strings.Split(textutil.StripANSI(raw), "\r\r") {
		piece = textutil.TrimEdges(piece)
		for _, sub := range strings.Split(piece, "\r\n") {
			for _, part := range strings.Split(sub, "\r") {
				part = textutil.TrimEdges(part)
				if part == "" || textutil.HasPercent(part) {
					continue
				}
				pieces = append(pieces, textutil.TrimLineBreaks(part))
			}
		}
	}

	var kept []string
	for _, line := range pieces {
		if checks.IsControlGarbage(line) ||
			checks.IsExitEcho(line) ||
			checks.IsAptWarning(line) ||
			checks.IsDebuggerNoise(line) ||
			checks.IsDebconfNoise(line) {
			continue
		}
		if checks.IsAptProgress(line) {
			line = textutil.CleanProgress(line)
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
