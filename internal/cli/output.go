package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const defaultWidth = 100

// Theme holds the colors for terminal output.
type Theme struct {
	plain   bool
	width   int
	Title   lipgloss.Color
	Label   lipgloss.Color
	Success lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	width:   defaultWidth,
	Title:   lipgloss.Color("#5FAFD7"), // light blue
	Label:   lipgloss.Color("#AF87FF"), // violet
	Success: lipgloss.Color("#00D787"), // green
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

// themeFor styles output only when w is a terminal.
func themeFor(w io.Writer) Theme {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return Theme{plain: true, width: defaultWidth}
	}
	t := defaultTheme
	if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 20 {
		t.width = width
	}
	return t
}

func (t Theme) render(color lipgloss.Color, bold bool, s string) string {
	if t.plain {
		return s
	}
	return lipgloss.NewStyle().Foreground(color).Bold(bold).Render(s)
}

func (t Theme) title(s string) string   { return t.render(t.Title, true, s) }
func (t Theme) label(s string) string   { return t.render(t.Label, false, s) }
func (t Theme) success(s string) string { return t.render(t.Success, true, s) }
func (t Theme) hint(s string) string    { return t.render(t.Hint, false, s) }

// wrap fits s to the terminal width with indent.
func (t Theme) wrap(s string, indent int) string {
	if t.plain {
		return strings.Repeat(" ", indent) + s
	}
	return lipgloss.NewStyle().Width(t.width - indent).MarginLeft(indent).Render(s)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printField(w io.Writer, t Theme, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "%s %s\n", t.label(name+":"), value)
}

func printList(w io.Writer, t Theme, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", t.title(heading))
	for _, item := range items {
		fmt.Fprintln(w, t.wrap("• "+item, 2))
	}
}
