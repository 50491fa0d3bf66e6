package status

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const bannerTitle = "Spark Compiler"

// ConsoleReporter prints one line per notification. Colour is applied only when
// the terminal supports it (see color.Enable); plain output otherwise.
type ConsoleReporter struct {
	mu      sync.Mutex
	out     io.Writer
	colored bool
	printer *message.Printer
}

// NewConsoleReporter writes to out. colored forces colour off when false.
func NewConsoleReporter(out io.Writer, colored bool) *ConsoleReporter {
	return &ConsoleReporter{
		out:     out,
		colored: colored && color.SupportColor(),
		printer: message.NewPrinter(language.English),
	}
}

func (c *ConsoleReporter) paint(style color.Color, s string) string {
	if !c.colored {
		return s
	}
	return style.Sprint(s)
}

func (c *ConsoleReporter) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, line)
}

// Banner prints the program title framed by rules.
func (c *ConsoleReporter) Banner() {
	rule := strings.Repeat("=", len(bannerTitle)+4)
	c.println(c.paint(color.FgCyan, rule))
	c.println(c.paint(color.FgCyan, "  "+bannerTitle))
	c.println(c.paint(color.FgCyan, rule))
}

func (c *ConsoleReporter) Start(label string) {
	c.println(c.paint(color.FgGray, "• compiling "+label))
}

func (c *ConsoleReporter) Succeed(label string) {
	c.println(c.paint(color.FgGreen, "✔ "+label))
}

// Fail prints the marker line and the diagnostic as one write so concurrent
// output cannot split them.
func (c *ConsoleReporter) Fail(label, diagnostic string) {
	line := c.paint(color.FgRed, "✖ "+label)
	if diagnostic != "" {
		line += "\n" + diagnostic
	}
	c.println(line)
}

// Summary is the end-of-build line printed by ConsoleReporter.Summary.
type Summary struct {
	Status          string
	Succeeded       int
	Failed          int
	Canceled        int
	DiscoveryErrors int
	Duration        time.Duration
}

// Summary prints the final build line, e.g. "success: 1,204 compiled, 0 failed in 3.2s".
func (c *ConsoleReporter) Summary(s Summary) {
	line := c.printer.Sprintf("%s: %d compiled, %d failed", s.Status, s.Succeeded, s.Failed)
	if s.Canceled > 0 {
		line += c.printer.Sprintf(", %d canceled", s.Canceled)
	}
	if s.DiscoveryErrors > 0 {
		line += c.printer.Sprintf(", %d pattern errors", s.DiscoveryErrors)
	}
	line += " in " + s.Duration.Round(100*time.Millisecond).String()

	style := color.FgGreen
	if s.Failed > 0 || s.Status != "success" {
		style = color.FgRed
	}
	c.println(c.paint(style, line))
}
