// Package shell is the terminal presentation shell: a line-editing REPL that
// submits turns to services.TurnService and prints the answer as it streams.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"akashchat/internal/logger"
	"akashchat/internal/services"
	"akashchat/pkg/chattypes"
)

var (
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	modelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	currentStyle = lipgloss.NewStyle().Bold(true)
)

var shellLog = logger.NewStyledLogger("shell")

// Options holds the shell's dependencies.
type Options struct {
	Turns    *services.TurnService
	Catalog  *services.ModelCatalogService
	Session  *chattypes.ChatSession
	Markdown *services.MarkdownService // nil disables the rendered answer
	Thinking *services.ThinkingRendererService
	Now      func() time.Time

	Out    io.Writer
	ErrOut io.Writer

	// Indicators shows an elapsed-time line while waiting. Enable only on a terminal.
	Indicators bool

	// HistoryFile stores prompt history between runs. Empty disables it.
	HistoryFile string
}

// Shell is an interactive chat REPL bound to one session.
type Shell struct {
	opts Options
}

// New creates a shell. Out and ErrOut default to stdout and stderr.
func New(opts Options) *Shell {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.ErrOut == nil {
		opts.ErrOut = os.Stderr
	}
	if opts.Thinking == nil {
		opts.Thinking = services.NewThinkingRendererService()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Shell{opts: opts}
}

// DefaultHistoryFile returns ~/.config/akashchat/chat_history, or "" when
// the user config directory is unknown.
func DefaultHistoryFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "akashchat", "chat_history")
}

// Run reads lines until /exit, Ctrl+C at the prompt, EOF or ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(s.complete)

	s.loadHistory(line)
	defer s.saveHistory(line)

	s.printWelcome()

	for ctx.Err() == nil {
		input, err := line.Prompt(promptStyle.Render("akashchat> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(s.opts.Out)
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}

		exit, err := s.HandleLine(ctx, input)
		if err != nil {
			s.printError(err)
		}
		if exit {
			return nil
		}
	}
	return nil
}

// HandleLine processes one line of input. Lines starting with "/" are shell
// commands; anything else is submitted as a turn. exit reports /exit.
func (s *Shell) HandleLine(ctx context.Context, input string) (exit bool, err error) {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "/") {
		return s.handleCommand(trimmed)
	}
	if trimmed == "" {
		return false, nil
	}
	return false, s.submit(ctx, input)
}

func (s *Shell) submit(ctx context.Context, text string) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	sink := newTerminalSink(s.opts.Out, s.opts.Thinking, s.opts.Indicators)
	result, err := s.opts.Turns.HandleUserTurn(turnCtx, text, s.opts.Session, sink)
	if err != nil {
		return err
	}

	if s.opts.Markdown != nil && result.Assistant != nil {
		_, answer := services.SplitThinking(result.Assistant.Content)
		rendered, renderErr := s.opts.Markdown.Render(answer)
		if renderErr != nil {
			shellLog.Debug("Markdown render failed", "error", renderErr)
			return nil
		}
		fmt.Fprint(s.opts.Out, rendered)
	}
	return nil
}

func (s *Shell) handleCommand(cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help", "/h", "/?", "/":
		s.printHelp()
	case "/model", "/m":
		return false, s.handleModel(args)
	case "/search":
		return false, s.handleSearch(args)
	case "/history":
		s.printHistory()
	case "/exit", "/quit", "/q":
		return true, nil
	default:
		return false, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return false, nil
}

func (s *Shell) handleModel(args []string) error {
	settings := s.opts.Session.Settings()

	if len(args) == 0 {
		for _, m := range s.opts.Catalog.Models() {
			marker := "  "
			name := m.ID
			if strings.EqualFold(m.ID, settings.SelectedModel) {
				marker = "* "
				name = currentStyle.Render(m.ID)
			}
			fmt.Fprintf(s.opts.Out, "%s%s %s\n", marker, name, infoStyle.Render(m.Description))
		}
		return nil
	}

	entry, err := s.opts.Catalog.Resolve(args[0])
	if err != nil {
		return err
	}
	settings.SelectedModel = entry.ID
	s.opts.Session.SetSettings(settings, s.opts.Now())
	fmt.Fprintf(s.opts.Out, "%s Switched to model: %s\n", okStyle.Render("[OK]"), entry.ID)
	return nil
}

func (s *Shell) handleSearch(args []string) error {
	settings := s.opts.Session.Settings()

	if len(args) == 0 {
		state := "off"
		if settings.WebSearchEnabled {
			state = "on"
		}
		fmt.Fprintf(s.opts.Out, "%s Web search is %s\n", infoStyle.Render("[Search]"), state)
		return nil
	}

	switch strings.ToLower(args[0]) {
	case "on":
		if !s.opts.Turns.SearchAvailable() {
			return chattypes.NewTurnError(chattypes.KindConfiguration, "search", fmt.Errorf("set SERPER_API_KEY to enable web search"))
		}
		settings.WebSearchEnabled = true
	case "off":
		settings.WebSearchEnabled = false
	default:
		return fmt.Errorf("usage: /search on|off")
	}

	s.opts.Session.SetSettings(settings, s.opts.Now())
	fmt.Fprintf(s.opts.Out, "%s Web search %s\n", okStyle.Render("[OK]"), strings.ToLower(args[0]))
	return nil
}

func (s *Shell) complete(line string) []string {
	if !strings.HasPrefix(line, "/") {
		return nil
	}
	var out []string
	for _, cmd := range []string{"/model", "/search on", "/search off", "/history", "/help", "/exit"} {
		if strings.HasPrefix(cmd, line) {
			out = append(out, cmd)
		}
	}
	if strings.HasPrefix(line, "/model ") {
		prefix := strings.TrimPrefix(line, "/model ")
		for _, m := range s.opts.Catalog.Models() {
			if strings.HasPrefix(strings.ToLower(m.ID), strings.ToLower(prefix)) {
				out = append(out, "/model "+m.ID)
			}
		}
	}
	return out
}

func (s *Shell) printWelcome() {
	settings := s.opts.Session.Settings()
	fmt.Fprintf(s.opts.Out, "%s\n", promptStyle.Render("akashchat"))
	fmt.Fprintf(s.opts.Out, "%s model %s, web search %v. Type /help for commands.\n\n",
		infoStyle.Render("[Info]"), settings.SelectedModel, settings.WebSearchEnabled)
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.opts.Out, "Commands:")
	fmt.Fprintln(s.opts.Out, "  /model [id]       list models or switch model")
	fmt.Fprintln(s.opts.Out, "  /search on|off    toggle web search")
	fmt.Fprintln(s.opts.Out, "  /history          show the conversation")
	fmt.Fprintln(s.opts.Out, "  /help             show this help")
	fmt.Fprintln(s.opts.Out, "  /exit             leave the shell")
	fmt.Fprintln(s.opts.Out, "Anything else is sent to the model. Ctrl+C cancels a running answer.")
}

func (s *Shell) printHistory() {
	messages := s.opts.Session.Messages()
	if len(messages) == 0 {
		fmt.Fprintln(s.opts.Out, infoStyle.Render("[No messages yet]"))
		return
	}
	for _, msg := range messages {
		label := modelStyle.Render("assistant")
		if msg.Role == chattypes.RoleUser {
			label = userStyle.Render("you")
		}
		fmt.Fprintf(s.opts.Out, "%s: %s\n", label, msg.Content)
	}
}

func (s *Shell) printError(err error) {
	msg := err.Error()
	if kind := chattypes.KindOf(err); kind.Retryable() {
		msg += " (you can resubmit)"
	}
	fmt.Fprintf(s.opts.ErrOut, "%s %s\n", errorStyle.Render("[Error]"), msg)
}

func (s *Shell) loadHistory(line *liner.State) {
	if s.opts.HistoryFile == "" {
		return
	}
	f, err := os.Open(s.opts.HistoryFile)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := line.ReadHistory(f); err != nil {
		shellLog.Debug("History not loaded", "path", s.opts.HistoryFile, "error", err)
	}
}

func (s *Shell) saveHistory(line *liner.State) {
	if s.opts.HistoryFile == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.opts.HistoryFile), 0o700); err != nil {
		return
	}
	f, err := os.OpenFile(s.opts.HistoryFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := line.WriteHistory(f); err != nil {
		shellLog.Debug("History not saved", "path", s.opts.HistoryFile, "error", err)
	}
}
