// Package logbuf keeps a bounded tail of a child process's output.
package logbuf

import (
	"bytes"
	"strings"
	"sync"
)

// Tail is an io.Writer that retains only the last n lines written to it.
// A trailing line without a newline is kept as well.
type Tail struct {
	mu      sync.Mutex
	lines   []string
	max     int
	partial bytes.Buffer
}

// NewTail returns a Tail that keeps at most n complete lines.
func NewTail(n int) *Tail {
	if n < 1 {
		n = 1
	}
	return &Tail{max: n}
}

func (t *Tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.partial.Write(p)
	for {
		i := bytes.IndexByte(t.partial.Bytes(), '\n')
		if i < 0 {
			break
		}
		line := strings.TrimRight(string(t.partial.Next(i+1)), "\r\n")
		t.lines = append(t.lines, line)
		if len(t.lines) > t.max {
			t.lines = t.lines[len(t.lines)-t.max:]
		}
	}
	return len(p), nil
}

// Lines returns the retained lines, oldest first, including any
// unterminated final line.
func (t *Tail) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, len(t.lines), len(t.lines)+1)
	copy(out, t.lines)
	if t.partial.Len() > 0 {
		out = append(out, strings.TrimRight(t.partial.String(), "\r"))
	}
	return out
}

// String joins the retained lines with "; ", dropping blank ones.
func (t *Tail) String() string {
	var kept []string
	for _, l := range t.Lines() {
		if s := strings.TrimSpace(l); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "; ")
}
