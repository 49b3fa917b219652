package services

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"akashchat/internal/logger"
)

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// SegmentKind classifies a piece of streamed text for display.
type SegmentKind string

const (
	// SegmentThinking is reasoning text between <think> tags.
	SegmentThinking SegmentKind = "thinking"
	// SegmentAnswer is everything outside <think> tags.
	SegmentAnswer SegmentKind = "answer"
)

// Segment is a run of display text of one kind.
type Segment struct {
	Kind SegmentKind
	Text string
}

// ThinkSplitter separates reasoning from answer text in a fragment stream.
// Tags may be split across fragments; a partial tag at the end of a
// fragment is held back until the next Push or Flush. It only affects
// display: the tags are dropped from the segments it returns.
type ThinkSplitter struct {
	inThink bool
	pending string
}

// Push consumes one fragment and returns the segments that are now certain.
func (s *ThinkSplitter) Push(fragment string) []Segment {
	buf := s.pending + fragment
	s.pending = ""

	var segments []Segment
	for buf != "" {
		tag := thinkOpenTag
		if s.inThink {
			tag = thinkCloseTag
		}

		if idx := strings.Index(buf, tag); idx >= 0 {
			segments = s.appendSegment(segments, buf[:idx])
			buf = buf[idx+len(tag):]
			s.inThink = !s.inThink
			continue
		}

		hold := partialTagSuffix(buf, tag)
		segments = s.appendSegment(segments, buf[:len(buf)-hold])
		s.pending = buf[len(buf)-hold:]
		break
	}
	return segments
}

// Flush returns any held-back text. Call it once the stream has ended.
func (s *ThinkSplitter) Flush() []Segment {
	text := s.pending
	s.pending = ""
	return s.appendSegment(nil, text)
}

// InThink reports whether the splitter is inside a <think> block.
func (s *ThinkSplitter) InThink() bool {
	return s.inThink
}

func (s *ThinkSplitter) appendSegment(segments []Segment, text string) []Segment {
	if text == "" {
		return segments
	}
	kind := SegmentAnswer
	if s.inThink {
		kind = SegmentThinking
	}
	if n := len(segments); n > 0 && segments[n-1].Kind == kind {
		segments[n-1].Text += text
		return segments
	}
	return append(segments, Segment{Kind: kind, Text: text})
}

// partialTagSuffix returns the length of the longest suffix of s that is a
// proper prefix of tag.
func partialTagSuffix(s, tag string) int {
	maxLen := len(tag) - 1
	if len(s) < maxLen {
		maxLen = len(s)
	}
	for n := maxLen; n > 0; n-- {
		if strings.HasPrefix(tag, s[len(s)-n:]) {
			return n
		}
	}
	return 0
}

// SplitThinking splits complete content into its reasoning and answer parts.
func SplitThinking(content string) (thinking, answer string) {
	var splitter ThinkSplitter
	var thinkBuf, answerBuf strings.Builder
	for _, seg := range append(splitter.Push(content), splitter.Flush()...) {
		if seg.Kind == SegmentThinking {
			thinkBuf.WriteString(seg.Text)
		} else {
			answerBuf.WriteString(seg.Text)
		}
	}
	return strings.TrimSpace(thinkBuf.String()), strings.TrimSpace(answerBuf.String())
}

// ThinkingRendererService renders reasoning segments for the terminal shell.
type ThinkingRendererService struct {
	thinkingStyle lipgloss.Style
	initialized   bool
}

// NewThinkingRendererService creates a new ThinkingRendererService instance.
func NewThinkingRendererService() *ThinkingRendererService {
	return &ThinkingRendererService{
		thinkingStyle: lipgloss.NewStyle().Faint(true).Italic(true),
	}
}

// Name returns the service name "thinking_renderer" for registration.
func (t *ThinkingRendererService) Name() string {
	return "thinking_renderer"
}

// Initialize sets up the ThinkingRendererService.
func (t *ThinkingRendererService) Initialize() error {
	t.initialized = true
	logger.ServiceOperation("thinking_renderer", "initialize", "completed")
	return nil
}

// NewSplitter returns a fresh splitter for one turn.
func (t *ThinkingRendererService) NewSplitter() *ThinkSplitter {
	return &ThinkSplitter{}
}

// RenderSegment styles thinking text and returns answer text unchanged.
func (t *ThinkingRendererService) RenderSegment(seg Segment) string {
	if seg.Kind == SegmentThinking {
		return t.thinkingStyle.Render(seg.Text)
	}
	return seg.Text
}
