package buffer

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	r := New(100)

	if r.Cap() != 100 {
		t.Errorf("Expected capacity 100, got %d", r.Cap())
	}

	if r.Len() != 0 {
		t.Errorf("Expected length 0, got %d", r.Len())
	}
}

func TestNew_DefaultCapacity(t *testing.T) {
	r := New(0)

	if r.Cap() != 200 {
		t.Errorf("Expected default capacity 200, got %d", r.Cap())
	}
}

func TestAppend_Single(t *testing.T) {
	r := New(10)

	r.Append("test line")

	if r.Len() != 1 {
		t.Errorf("Expected length 1, got %d", r.Len())
	}

	lines := r.Tail(10)
	if len(lines) != 1 || lines[0] != "test line" {
		t.Errorf("Expected [test line], got %v", lines)
	}
}

func TestAppend_WrapAround(t *testing.T) {
	r := New(3)

	r.Append("line1")
	r.Append("line2")
	r.Append("line3")
	r.Append("line4") // evicts line1

	if r.Len() != 3 {
		t.Errorf("Expected length 3, got %d", r.Len())
	}

	want := []string{"line2", "line3", "line4"}
	if got := r.Tail(3); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestTail_FewerThanRequested(t *testing.T) {
	r := New(10)
	r.Append("only")

	if got := r.Tail(5); len(got) != 1 || got[0] != "only" {
		t.Errorf("Expected [only], got %v", got)
	}

	if got := r.Tail(0); got != nil {
		t.Errorf("Expected nil for n=0, got %v", got)
	}
}

func TestTailText(t *testing.T) {
	r := New(5)
	r.Append("a")
	r.Append("b")
	r.Append("c")

	if got := r.TailText(2); got != "b\nc" {
		t.Errorf("TailText(2) = %q, want %q", got, "b\nc")
	}

	empty := New(5)
	if got := empty.TailText(3); got != "" {
		t.Errorf("Expected empty string, got %q", got)
	}
}

func TestClear(t *testing.T) {
	r := New(5)
	r.Append("line")
	r.Clear()

	if r.Len() != 0 {
		t.Errorf("Expected length 0 after Clear, got %d", r.Len())
	}
	if got := r.Tail(5); len(got) != 0 {
		t.Errorf("Expected no lines after Clear, got %v", got)
	}
}

func TestConcurrentAppend(t *testing.T) {
	r := New(50)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				r.Append(fmt.Sprintf("line-%d-%d", n, j))
			}
		}(i)
	}
	wg.Wait()

	if r.Len() != 50 {
		t.Errorf("Expected ring full at 50, got %d", r.Len())
	}
}
