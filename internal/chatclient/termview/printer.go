// Package termview draws chat turns on a plain terminal. Text streams as it
// arrives, tool parts print a status line each time their view changes and
// charts print as a table.
package termview

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tjfontaine/propertychat/internal/chatclient"
	"github.com/tjfontaine/propertychat/internal/tools"
)

type styles struct {
	loading lipgloss.Style
	success lipgloss.Style
	failed  lipgloss.Style
	banner  lipgloss.Style
	muted   lipgloss.Style
	title   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		loading: r.NewStyle().Foreground(lipgloss.Color("#9ca3d8")).Italic(true),
		success: r.NewStyle().Foreground(lipgloss.Color("#05ffa1")),
		failed:  r.NewStyle().Foreground(lipgloss.Color("#ff5f87")),
		banner:  r.NewStyle().Foreground(lipgloss.Color("#ff5f87")).Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#6c6f93")),
		title:   r.NewStyle().Bold(true),
	}
}

// Printer renders one turn at a time. Call Update with every snapshot, then
// Finish with the last one.
type Printer struct {
	w        io.Writer
	style    styles
	markdown *glamour.TermRenderer

	printed   map[string]int
	modes     map[string]chatclient.RenderMode
	submitted bool
	midLine   bool
}

// Option configures a Printer.
type Option func(*Printer) error

// WithMarkdown renders finished text as markdown instead of streaming it raw.
func WithMarkdown(wordWrap int) Option {
	return func(p *Printer) error {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(wordWrap),
		)
		if err != nil {
			return err
		}
		p.markdown = r
		return nil
	}
}

func New(w io.Writer, opts ...Option) (*Printer, error) {
	p := &Printer{w: w, style: newStyles(lipgloss.NewRenderer(w))}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.reset()
	return p, nil
}

func (p *Printer) reset() {
	p.printed = make(map[string]int)
	p.modes = make(map[string]chatclient.RenderMode)
	p.submitted = false
	p.midLine = false
}

// Update prints whatever changed since the previous snapshot.
func (p *Printer) Update(s chatclient.Snapshot) {
	tv := chatclient.RenderTurn(s)
	if tv.Submitted && !p.submitted {
		p.submitted = true
		fmt.Fprintln(p.w, p.style.muted.Render(chatclient.SubmittedText))
	}

	for i, part := range s.Parts {
		view := tv.Views[i]
		key := string(part.Kind) + ":" + part.ID
		if part.Kind == chatclient.PartText {
			if p.markdown != nil {
				continue
			}
			if n := p.printed[key]; len(view.Text) > n {
				fmt.Fprint(p.w, view.Text[n:])
				p.printed[key] = len(view.Text)
				p.midLine = !strings.HasSuffix(view.Text, "\n")
			}
			continue
		}

		if p.modes[key] == view.Mode {
			continue
		}
		p.modes[key] = view.Mode
		p.breakLine()
		p.printTool(view)
	}
}

// Finish prints the rendered markdown, the error banner and a closing
// newline, then resets for the next turn.
func (p *Printer) Finish(s chatclient.Snapshot) {
	p.Update(s)

	if p.markdown != nil {
		for _, part := range s.Parts {
			if part.Kind != chatclient.PartText || part.Text == "" {
				continue
			}
			out, err := p.markdown.Render(part.Text)
			if err != nil {
				out = part.Text + "\n"
			}
			fmt.Fprint(p.w, out)
		}
	} else {
		p.breakLine()
	}

	tv := chatclient.RenderTurn(s)
	switch {
	case tv.ErrorBanner != "":
		fmt.Fprintln(p.w, p.style.banner.Render(tv.ErrorBanner))
	case s.Status == chatclient.StatusAborted:
		fmt.Fprintln(p.w, p.style.muted.Render("(stopped)"))
	}
	p.reset()
}

// breakLine ends a streamed text line before a status line is printed.
func (p *Printer) breakLine() {
	if p.midLine {
		fmt.Fprintln(p.w)
		p.midLine = false
	}
}

func (p *Printer) printTool(v chatclient.View) {
	switch v.Mode {
	case chatclient.ModeToolLoading:
		fmt.Fprintln(p.w, p.style.loading.Render("… "+v.Text))
	case chatclient.ModeToolSuccess:
		fmt.Fprintln(p.w, p.style.success.Render("✓ "+v.Text))
	case chatclient.ModeToolError:
		fmt.Fprintln(p.w, p.style.failed.Render("✗ "+v.Text))
	case chatclient.ModeChart:
		fmt.Fprintln(p.w, p.Chart(v.Chart))
	}
}

// Chart draws a chart option as a table with one row per category and one
// column per series.
func (p *Printer) Chart(opt *tools.ChartOption) string {
	if opt == nil {
		return ""
	}
	headers := []string{""}
	for _, s := range opt.Series {
		headers = append(headers, s.Name)
	}
	rows := make([][]string, 0, len(opt.XAxis.Data))
	for i, category := range opt.XAxis.Data {
		row := []string{category}
		for _, s := range opt.Series {
			cell := "-"
			if i < len(s.Data) && s.Data[i] != nil {
				cell = strconv.FormatFloat(*s.Data[i], 'f', -1, 64)
			}
			row = append(row, cell)
		}
		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	if opt.Title.Text == "" {
		return t.String()
	}
	return p.style.title.Render(opt.Title.Text) + "\n" + t.String()
}
