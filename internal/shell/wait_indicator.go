package shell

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// waitIndicator redraws "<label> <n>s" on the current line until stopped.
// Stop clears the line so streamed text starts at column zero.
type waitIndicator struct {
	out      io.Writer
	label    string
	start    time.Time
	interval time.Duration

	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
	width  int // written only by the render goroutine
}

func startWaitIndicator(out io.Writer, label string, interval time.Duration) *waitIndicator {
	w := &waitIndicator{
		out:      out,
		label:    label,
		start:    time.Now(),
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *waitIndicator) run() {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.render()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.render()
		}
	}
}

func (w *waitIndicator) render() {
	seconds := int(time.Since(w.start).Seconds())
	text := fmt.Sprintf("%s %ds", w.label, seconds)
	fmt.Fprint(w.out, "\r"+infoStyle.Render(text))
	if len(text) > w.width {
		w.width = len(text)
	}
}

// Stop ends the display and erases it. Safe to call more than once.
func (w *waitIndicator) Stop() {
	w.once.Do(func() {
		close(w.stopCh)
		<-w.done
		fmt.Fprint(w.out, "\r"+strings.Repeat(" ", w.width)+"\r")
	})
}
