// Package render writes conversation messages and faults as ANSI-styled
// terminal output. Assistant text is formatted as markdown; tool calls and
// tool results render as compact status lines.
package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/parley"
)

const previewLen = 60

// Renderer formats messages and faults for a terminal. It remembers tool
// names by tool use ID so results arriving in a later message can be
// labeled with the tool that produced them.
type Renderer struct {
	width   int
	verbose bool
	styles  styles
	names   map[string]string
}

type styles struct {
	user      lipgloss.Style
	toolCall  lipgloss.Style
	errorText lipgloss.Style
	success   lipgloss.Style
	muted     lipgloss.Style
	accent    lipgloss.Style
	code      lipgloss.Style
	bold      lipgloss.Style
	italic    lipgloss.Style
	underline lipgloss.Style
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithWidth sets the wrap width for paragraphs and list items.
func WithWidth(width int) Option {
	return func(r *Renderer) {
		if width > 0 {
			r.width = width
		}
	}
}

// WithVerbose enables printing the chain of wrapped causes after a fault.
func WithVerbose(verbose bool) Option {
	return func(r *Renderer) { r.verbose = verbose }
}

// New creates a Renderer that styles output according to theme.
func New(theme parley.Theme, opts ...Option) *Renderer {
	r := &Renderer{
		width: 80,
		names: make(map[string]string),
		styles: styles{
			user:      lipgloss.NewStyle().Foreground(ansiColor(theme.UserMsg)).Bold(true),
			toolCall:  lipgloss.NewStyle().Foreground(ansiColor(theme.ToolCall)),
			errorText: lipgloss.NewStyle().Foreground(ansiColor(theme.Error)),
			success:   lipgloss.NewStyle().Foreground(ansiColor(theme.Success)),
			muted:     lipgloss.NewStyle().Foreground(ansiColor(theme.Muted)).Faint(true),
			accent:    lipgloss.NewStyle().Foreground(ansiColor(theme.Accent)).Bold(true),
			code:      lipgloss.NewStyle().Background(ansiColor(theme.CodeBg)),
			bold:      lipgloss.NewStyle().Bold(true),
			italic:    lipgloss.NewStyle().Italic(true),
			underline: lipgloss.NewStyle().Underline(true),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func ansiColor(index int) lipgloss.TerminalColor {
	if index < 0 {
		return lipgloss.NoColor{}
	}
	return lipgloss.Color(strconv.Itoa(index))
}

// Message writes msg to w, one styled section per content block, followed
// by a blank line.
func (r *Renderer) Message(w io.Writer, msg parley.Message) {
	for _, block := range msg.Content {
		switch b := block.(type) {
		case parley.TextBlock:
			if msg.Role == parley.RoleUser {
				fmt.Fprintln(w, r.styles.user.Render("> ")+b.Text)
				continue
			}
			fmt.Fprintln(w, r.markdown(b.Text))
		case parley.ToolUseBlock:
			r.names[b.ID] = b.Name
			fmt.Fprintln(w, r.toolUse(b))
		case parley.ToolResultBlock:
			fmt.Fprintln(w, r.toolResult(b))
		}
	}
	fmt.Fprintln(w)
}

// Fault writes a styled error line to w. In verbose mode each wrapped
// cause follows on its own line.
func (r *Renderer) Fault(w io.Writer, err error) {
	line := fmt.Sprintf("parley: %v", err)
	if parley.IsRetriable(err) {
		line += " (retriable)"
	}
	fmt.Fprintln(w, r.styles.errorText.Render(line))
	if !r.verbose {
		return
	}
	for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
		fmt.Fprintln(w, r.styles.muted.Render("  caused by: "+cause.Error()))
	}
}

func (r *Renderer) toolUse(b parley.ToolUseBlock) string {
	line := r.styles.toolCall.Render("▶ " + b.Name)
	if args := compactJSON(b.Input); args != "" && args != "{}" {
		line += " " + r.styles.muted.Render(clip(args, previewLen))
	}
	return line
}

// toolResult renders success results as a one-line header with a first-line
// preview and error results expanded with their full text.
func (r *Renderer) toolResult(b parley.ToolResultBlock) string {
	name := r.names[b.ToolUseID]
	if name == "" {
		name = b.ToolUseID
	}
	text := joinOutputs(b.Content)
	if b.Status == parley.StatusError {
		header := r.styles.toolCall.Render("▼ "+name) + " " + r.styles.errorText.Render("✗")
		if text == "" {
			return header
		}
		return header + "\n" + r.styles.errorText.Render(text)
	}
	header := r.styles.toolCall.Render("▶ "+name) + " " + r.styles.success.Render("✓")
	if preview := clip(firstLine(text), previewLen); preview != "" {
		header += "  " + preview
	}
	return header
}

func joinOutputs(outputs []parley.ToolOutput) string {
	parts := make([]string, 0, len(outputs))
	for _, o := range outputs {
		if o.Text != "" {
			parts = append(parts, o.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
