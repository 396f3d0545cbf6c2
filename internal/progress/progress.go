// SPDX-License-Identifier: MPL-2.0

// Package progress renders inline download and build progress on a terminal.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// redrawInterval limits how often a bar is repainted.
const redrawInterval = 100 * time.Millisecond

type (
	// Reporter receives progress for one transfer at a time.
	Reporter interface {
		// Start begins a transfer; total is -1 when the size is unknown.
		Start(label string, total int64)
		// Add records n more bytes.
		Add(n int64)
		// Done finishes the current transfer.
		Done()
	}

	// Bar draws a bubbles progress bar followed by humanized byte counts.
	Bar struct {
		mu        sync.Mutex
		out       io.Writer
		model     progress.Model
		label     string
		total     int64
		current   int64
		lastDraw  time.Time
		labelSty  lipgloss.Style
		countsSty lipgloss.Style
	}

	nop struct{}

	// countingReader forwards reads and reports their size.
	countingReader struct {
		r   io.Reader
		rep Reporter
	}
)

// Nop returns a Reporter that does nothing.
func Nop() Reporter { return nop{} }

func (nop) Start(string, int64) {}
func (nop) Add(int64)           {}
func (nop) Done()               {}

// NewBar creates a bar writing to out, typically os.Stderr.
func NewBar(out io.Writer) *Bar {
	return &Bar{
		out:       out,
		model:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(32)),
		labelSty:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")),
		countsSty: lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
	}
}

// Start implements Reporter.
func (b *Bar) Start(label string, total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.label, b.total, b.current = label, total, 0
	b.lastDraw = time.Time{}
	b.draw(false)
}

// Add implements Reporter.
func (b *Bar) Add(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current += n
	if time.Since(b.lastDraw) >= redrawInterval {
		b.draw(false)
	}
}

// Done implements Reporter.
func (b *Bar) Done() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.total < 0 {
		b.total = b.current
	}
	b.draw(true)
}

func (b *Bar) draw(final bool) {
	b.lastDraw = time.Now()

	counts := humanize.Bytes(uint64(max(b.current, 0)))
	percent := 0.0
	if b.total > 0 {
		percent = min(float64(b.current)/float64(b.total), 1)
		counts += " / " + humanize.Bytes(uint64(b.total))
	}

	line := fmt.Sprintf("\r%s %s %s", b.labelSty.Render(b.label), b.model.ViewAs(percent), b.countsSty.Render(counts))
	if final {
		line += "\n"
	}
	_, _ = io.WriteString(b.out, line)
}

// Current returns the bytes recorded since Start.
func (b *Bar) Current() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// Reader wraps r so every read is reported to rep.
func Reader(r io.Reader, rep Reporter) io.Reader {
	if rep == nil {
		return r
	}
	return &countingReader{r: r, rep: rep}
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.rep.Add(int64(n))
	}
	return n, err
}
