// Package ui renders batis command output: status lines, statement tables,
// SQL blocks and markdown descriptions.
package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

var (
	accent = lipgloss.Color("#00D9FF")
	muted  = lipgloss.Color("#6C757D")

	titleStyle = lipgloss.NewStyle().Foreground(accent).Bold(true).MarginBottom(1)
	mutedStyle = lipgloss.NewStyle().Foreground(muted)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF88")).Bold(true)
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4444")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB800")).Bold(true)
	infoStyle  = lipgloss.NewStyle().Foreground(accent)
	sqlStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(muted).Padding(0, 1)

	keyColor    = color.New(color.FgCyan, color.Bold)
	markerColor = color.New(color.FgYellow, color.Bold)

	// Positional markers of every supported dialect.
	markerPattern = regexp.MustCompile(`\?|\$[0-9]+|@p[0-9]+`)
)

func width() int {
	if w := pterm.GetTerminalWidth(); w > 0 {
		return w
	}
	return 80
}

func status(w io.Writer, style lipgloss.Style, symbol, format string, args ...any) {
	fmt.Fprintln(w, style.Render(symbol+" "+fmt.Sprintf(format, args...)))
}

// PrintHeader prints the command banner.
func PrintHeader(title string, subtitle string) {
	fmt.Println(lipgloss.NewStyle().
		Width(width()).
		Align(lipgloss.Center).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 2).
		Render(lipgloss.JoinVertical(lipgloss.Center, titleStyle.Render(title), mutedStyle.Render(subtitle))))
	fmt.Println()
}

func PrintSuccess(format string, args ...any) { status(os.Stdout, okStyle, "✓", format, args...) }

// PrintError writes to stderr.
func PrintError(format string, args ...any) { status(os.Stderr, failStyle, "✗", format, args...) }

func PrintWarning(format string, args ...any) { status(os.Stdout, warnStyle, "⚠", format, args...) }

func PrintInfo(format string, args ...any) { status(os.Stdout, infoStyle, "ℹ", format, args...) }

// PrintErrors writes err to stderr, one line per joined error.
func PrintErrors(err error) {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			PrintErrors(e)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "  • %v\n", err)
}

// PrintKeyValue prints one labelled value.
func PrintKeyValue(key string, value any) {
	keyColor.Printf("%-16s", key+":")
	fmt.Printf(" %v\n", value)
}

// PrintTable prints rows under headers.
func PrintTable(headers []string, rows [][]string) {
	data := append(pterm.TableData{headers}, rows...)
	_ = pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(data).Render()
}

func PrintList(items []string) {
	for _, item := range items {
		fmt.Printf("  • %s\n", item)
	}
}

// PrintMarkdown renders markdown for the terminal.
func PrintMarkdown(content string) error {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(min(width(), 100)))
	if err != nil {
		return err
	}
	out, err := r.Render(content)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// PrintSpinner starts a spinner; stop it with Success or Fail.
func PrintSpinner(message string) (*pterm.SpinnerPrinter, error) {
	return pterm.DefaultSpinner.WithRemoveWhenDone(false).WithText(message).Start()
}

func PrintSection(title string) {
	fmt.Println(lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(muted).
		Render(title))
}

// PrintSQL prints a compiled statement in a box with its positional
// markers highlighted.
func PrintSQL(sql string) {
	fmt.Println(sqlStyle.Render(HighlightMarkers(sql)))
}

// HighlightMarkers colors the positional markers in sql. It returns sql
// unchanged when color is off.
func HighlightMarkers(sql string) string {
	if color.NoColor {
		return sql
	}
	var b strings.Builder
	last := 0
	for _, loc := range markerPattern.FindAllStringIndex(sql, -1) {
		b.WriteString(sql[last:loc[0]])
		b.WriteString(markerColor.Sprint(sql[loc[0]:loc[1]]))
		last = loc[1]
	}
	b.WriteString(sql[last:])
	return b.String()
}

// DisableColor turns colored output off.
func DisableColor() {
	color.NoColor = true
	pterm.DisableColor()
	pterm.DisableStyling()
}
