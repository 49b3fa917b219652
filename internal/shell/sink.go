package shell

import (
	"fmt"
	"io"
	"time"

	"akashchat/internal/services"
	"akashchat/pkg/chattypes"
)

const indicatorInterval = 500 * time.Millisecond

// terminalSink prints a turn as it happens. Thinking text is dimmed.
// With indicators enabled, an elapsed-time line is shown while waiting
// for search results and for the first fragment.
type terminalSink struct {
	out        io.Writer
	renderer   *services.ThinkingRendererService
	splitter   *services.ThinkSplitter
	indicators bool
	waiting    *waitIndicator
	started    bool
}

func newTerminalSink(out io.Writer, renderer *services.ThinkingRendererService, indicators bool) *terminalSink {
	return &terminalSink{
		out:        out,
		renderer:   renderer,
		splitter:   renderer.NewSplitter(),
		indicators: indicators,
	}
}

func (t *terminalSink) OnUserMessage(chattypes.Message) {}

func (t *terminalSink) OnState(state chattypes.TurnState) {
	switch state {
	case chattypes.TurnAwaitingSearch:
		t.wait("Searching the web...")
	case chattypes.TurnAwaitingCompletion:
		t.wait("Generating...")
	}
}

func (t *terminalSink) OnFragment(fragment string) {
	if !t.started {
		t.stopWaiting()
		t.started = true
		fmt.Fprint(t.out, modelStyle.Render("assistant")+": ")
	}
	t.print(t.splitter.Push(fragment))
}

func (t *terminalSink) OnCommitted(chattypes.Message) {
	t.stopWaiting()
	t.print(t.splitter.Flush())
	fmt.Fprintln(t.out)
}

func (t *terminalSink) OnAborted(error) {
	t.stopWaiting()
	if t.started {
		fmt.Fprintln(t.out, errorStyle.Render(" [incomplete]"))
	}
}

func (t *terminalSink) wait(label string) {
	t.stopWaiting()
	if !t.indicators {
		fmt.Fprintln(t.out, infoStyle.Render(label))
		return
	}
	t.waiting = startWaitIndicator(t.out, label, indicatorInterval)
}

func (t *terminalSink) stopWaiting() {
	if t.waiting != nil {
		t.waiting.Stop()
		t.waiting = nil
	}
}

func (t *terminalSink) print(segments []services.Segment) {
	for _, seg := range segments {
		fmt.Fprint(t.out, t.renderer.RenderSegment(seg))
	}
}
