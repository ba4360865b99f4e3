package install

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// statusInterval is the redraw period of the live status line.
const statusInterval = 50 * time.Millisecond

// TerminalStatus draws a right-aligned "Installing N packages (X.Xs)"
// status while a run is in progress. On a non-terminal writer it draws
// nothing.
type TerminalStatus struct {
	output io.Writer
	isTTY  bool
	width  int
	start  time.Time
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	packages atomic.Int64
}

// NewTerminalStatus starts the status line on console. Drawing goes
// through console so it never lands inside another line; terminal
// detection looks at console.Output().
func NewTerminalStatus(console Console, detector TTYDetector) *TerminalStatus {
	if detector == nil {
		detector = DefaultTTYDetector
	}
	raw := console.Output()
	t := &TerminalStatus{
		output: console,
		isTTY:  detector.IsTTY(raw),
		width:  120,
		start:  time.Now(),
		done:   make(chan struct{}),
	}
	if t.isTTY {
		if w, _, err := detector.GetSize(raw); err == nil && w > 0 {
			t.width = min(w, 120)
		}
		t.wg.Add(1)
		go t.loop()
	}
	return t
}

func (t *TerminalStatus) loop() {
	defer t.wg.Done()
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.draw()
		case <-t.done:
			return
		}
	}
}

func (t *TerminalStatus) draw() {
	status := fmt.Sprintf("Installing %d packages (%.1fs)", t.packages.Load(), time.Since(t.start).Seconds())
	// hide cursor, jump to the right edge, step back, write, return, show cursor
	_, _ = fmt.Fprintf(t.output, "\x1B[?25l\x1B[%dG\x1B[%dD%s\r\x1B[?25h", t.width, len(status), status)
}

// PackageClaimed bumps the package counter shown in the status.
func (t *TerminalStatus) PackageClaimed() {
	t.packages.Add(1)
}

// Stop ends the status line and clears it. Safe to call more than once.
func (t *TerminalStatus) Stop() {
	t.once.Do(func() {
		close(t.done)
		t.wg.Wait()
		if t.isTTY {
			_, _ = fmt.Fprint(t.output, "\x1B[K")
		}
	})
}

// Elapsed returns the time since the status started.
func (t *TerminalStatus) Elapsed() time.Duration {
	return time.Since(t.start)
}

// IsTTY reports whether the status is drawn.
func (t *TerminalStatus) IsTTY() bool {
	return t.isTTY
}
