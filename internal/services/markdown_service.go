package services

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"

	"akashchat/internal/logger"
)

// Glamour standard style names.
const (
	MarkdownStyleDark  = "dark"
	MarkdownStyleLight = "light"
	MarkdownStyleNoTTY = "notty"
)

// MarkdownService renders committed assistant answers for the terminal shell.
type MarkdownService struct {
	style       string
	wordWrap    int
	initialized bool
	renderer    *glamour.TermRenderer
}

// NewMarkdownService creates a renderer. An empty style is detected from the terminal.
func NewMarkdownService(style string, wordWrap int) *MarkdownService {
	if wordWrap <= 0 {
		wordWrap = 80
	}
	return &MarkdownService{
		style:    style,
		wordWrap: wordWrap,
	}
}

// Name returns the service name "markdown" for registration.
func (m *MarkdownService) Name() string {
	return "markdown"
}

// Initialize creates the glamour renderer.
func (m *MarkdownService) Initialize() error {
	if m.style == "" {
		m.style = DetectMarkdownStyle(termenv.NewOutput(os.Stdout))
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(m.wordWrap),
	)
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}

	m.renderer = renderer
	m.initialized = true
	logger.Debug("MarkdownService initialized", "style", m.style, "word_wrap", m.wordWrap)
	return nil
}

// Style returns the glamour style in use.
func (m *MarkdownService) Style() string {
	return m.style
}

// Render converts markdown to styled terminal text.
func (m *MarkdownService) Render(markdown string) (string, error) {
	if !m.initialized {
		return "", fmt.Errorf("markdown service not initialized")
	}

	if strings.TrimSpace(markdown) == "" {
		return "", fmt.Errorf("markdown content cannot be empty")
	}

	rendered, err := m.renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}

	return rendered, nil
}

// DetectMarkdownStyle picks a glamour style from the terminal's color
// support and background.
func DetectMarkdownStyle(output *termenv.Output) string {
	if output.Profile == termenv.Ascii {
		return MarkdownStyleNoTTY
	}
	if output.HasDarkBackground() {
		return MarkdownStyleDark
	}
	return MarkdownStyleLight
}
