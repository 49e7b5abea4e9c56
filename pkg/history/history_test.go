package history

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func TestIDsAreDense(t *testing.T) {
	h := New()

	a := h.Add("echo one", "/home/pi", "one", 0)
	b := h.Add("echo two", "/home/pi", "two", 0)
	c := h.Add("false", "/home/pi", "", 1)

	if a.ID != 1 || b.ID != 2 || c.ID != 3 {
		t.Errorf("expected ids 1,2,3 got %d,%d,%d", a.ID, b.ID, c.ID)
	}
}

func TestSudoPrefixStripped(t *testing.T) {
	h := New()

	rec := h.Add("sudo apt update", "/home/pi", "", 0)
	if !rec.Sudo {
		t.Error("expected Sudo flag set")
	}
	if rec.Command != "apt update" {
		t.Errorf("expected sudo prefix stripped, got %q", rec.Command)
	}

	plain := h.Add("apt list", "/home/pi", "", 0)
	if plain.Sudo {
		t.Error("Sudo flag must stay unset for plain commands")
	}
}

func TestGet(t *testing.T) {
	h := New()
	h.Add("pwd", "/", "/", 0)

	if rec, ok := h.Get(1); !ok || rec.Command != "pwd" {
		t.Errorf("Get(1) = %+v, %v", rec, ok)
	}
	if _, ok := h.Get(99); ok {
		t.Error("Get(99) should miss")
	}
}

func TestLast(t *testing.T) {
	h := New()

	if _, err := h.Last(); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}

	h.Add("echo hello", "/home/pi", "hello", 0)
	h.Add("echo world", "/home/pi", "world", 0)

	rec, err := h.Last()
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if rec.ID != 2 || rec.Output != "world" {
		t.Errorf("unexpected last record: %+v", rec)
	}
}

func TestConcurrentAdd(t *testing.T) {
	h := New()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Add("true", "/", "", 0)
		}()
	}
	wg.Wait()

	if h.Len() != n {
		t.Fatalf("expected %d records, got %d", n, h.Len())
	}
	seen := make(map[int]bool)
	for _, rec := range h.Records() {
		if rec.ID < 1 || rec.ID > n {
			t.Errorf("id %d out of range", rec.ID)
		}
		if seen[rec.ID] {
			t.Errorf("id %d assigned twice", rec.ID)
		}
		seen[rec.ID] = true
	}
}

func TestOutputNormalization(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			"crlf joined",
			"line one\r\nline two\r\n",
			"line one\nline two",
		},
		{
			"percent lines dropped",
			"real output\r\nReading database ... 45%\r\n",
			"real output",
		},
		{
			"ansi stripped",
			"\x1b[31merror text\x1b[0m\r\n",
			"error text",
		},
		{
			"exit echo dropped",
			"result\r\nexit\r\n",
			"result",
		},
		{
			"apt warning dropped",
			"WARNING: apt does not have a stable CLI interface. Use with caution in scripts.\r\nok\r\n",
			"ok",
		},
		{
			"apt progress cleaned",
			"  Hit:1 http://archive.ubuntu.com/ubuntu jammy InRelease \r\n",
			"Hit:1 http://archive.ubuntu.com/ubuntu jammy InRelease",
		},
		{
			"bare cr split",
			"first\rsecond\r\n",
			"first\nsecond",
		},
		{
			"empty",
			"",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			rec := h.Add("cmd", "/", tt.raw, 0)
			if rec.Output != tt.want {
				t.Errorf("normalized output = %q, want %q", rec.Output, tt.want)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")

	h := New()
	h.Add("sudo apt update", "/home/pi", "All packages are up to date.", 0)
	h.Add("false", "/home/pi", "", 1)

	if err := h.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", loaded.Len())
	}

	rec, ok := loaded.Get(1)
	if !ok || rec.Command != "apt update" || !rec.Sudo {
		t.Errorf("record 1 mismatch: %+v", rec)
	}

	// The id counter continues after the highest loaded id.
	next := loaded.Add("pwd", "/", "/", 0)
	if next.ID != 3 {
		t.Errorf("expected next id 3, got %d", next.ID)
	}
}
