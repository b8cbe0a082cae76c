package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}

	passStyle    = lipgloss.NewStyle().Foreground(colorPass)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarn)
	failStyle    = lipgloss.NewStyle().Foreground(colorFail)
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)

	productionBanner = lipgloss.NewStyle().
				Bold(true).
				Foreground(colorFail).
				Border(lipgloss.DoubleBorder()).
				BorderForeground(colorFail).
				Padding(0, 2)
	sandboxBanner = lipgloss.NewStyle().
			Foreground(colorPass).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPass).
			Padding(0, 2)
)

const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
)

func Pass(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintln(w, passStyle.Render(IconPass+" "+fmt.Sprintf(format, args...)))
}

func Warn(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintln(w, warnStyle.Render(IconWarn+" "+fmt.Sprintf(format, args...)))
}

func Fail(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintln(w, failStyle.Render(IconFail+" "+fmt.Sprintf(format, args...)))
}

func Info(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format+"\n", args...)
}

// Heading prints a section title such as "=== Authentication ===".
func Heading(w io.Writer, title string) {
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, headingStyle.Render("=== "+title+" ==="))
}

// ProductionBanner warns that destructive work targets a production org.
func ProductionBanner(w io.Writer, orgName string, lines ...string) {
	body := []string{"PRODUCTION INSTANCE: " + orgName}
	body = append(body, lines...)
	_, _ = fmt.Fprintln(w, productionBanner.Render(strings.Join(body, "\n")))
}

func SandboxBanner(w io.Writer, orgName string) {
	_, _ = fmt.Fprintln(w, sandboxBanner.Render("Sandbox instance: "+orgName))
}
