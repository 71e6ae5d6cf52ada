// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package campaign

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

// stageColors maps each pipeline stage to its accent color. ANSI 256
// codes for broad terminal compatibility, matching the palette the
// rest of the tooling uses.
var stageColors = map[campaign.Stage]lipgloss.Color{
	campaign.StageStrategy:     lipgloss.Color("75"),  // blue
	campaign.StageSegmentation: lipgloss.Color("114"), // green
	campaign.StageContent:      lipgloss.Color("220"), // yellow/amber
	campaign.StageCompliance:   lipgloss.Color("141"), // light purple
	campaign.StageExperiment:   lipgloss.Color("208"), // orange
}

// outcomeColors maps terminal campaign statuses to their result color.
var outcomeColors = map[campaign.Status]lipgloss.Color{
	campaign.StatusCompleted: lipgloss.Color("114"), // green
	campaign.StatusRejected:  lipgloss.Color("196"), // red
	campaign.StatusCancelled: lipgloss.Color("245"), // gray
}

// eventPrinter renders campaign stream events as terminal lines. On a
// terminal it colors stage headers and outcomes; piped output stays
// plain so the transcript remains grep- and diff-friendly.
type eventPrinter struct {
	out      io.Writer
	renderer *lipgloss.Renderer

	faint   lipgloss.Style
	title   lipgloss.Style
	failure lipgloss.Style
}

// newEventPrinter creates a printer writing to out. The color profile
// is forced rather than auto-detected: lipgloss's detection consults
// the process environment, which misreports when out is an explicit
// buffer (tests) or a pipe.
func newEventPrinter(out io.Writer) *eventPrinter {
	profile := termenv.Ascii
	if file, ok := out.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		profile = termenv.ANSI256
	}
	renderer := lipgloss.NewRenderer(out, termenv.WithProfile(profile))
	renderer.SetColorProfile(profile)

	return &eventPrinter{
		out:      out,
		renderer: renderer,
		faint:    renderer.NewStyle().Foreground(lipgloss.Color("245")),
		title:    renderer.NewStyle().Foreground(lipgloss.Color("255")).Bold(true),
		failure:  renderer.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// printEvent writes one campaign event. Unknown event types are
// skipped: a newer service may stream frames an older CLI does not
// know, and dropping them beats dying mid-run.
func (p *eventPrinter) printEvent(event *campaign.Event) {
	switch event.Type {
	case campaign.EventStarted:
		p.printStarted(event)
	case campaign.EventAgentMessage:
		p.printMessage(event)
	case campaign.EventCompleted:
		p.printCompleted(event)
	case campaign.EventError:
		p.printError(event)
	}
}

func (p *eventPrinter) printStarted(event *campaign.Event) {
	fmt.Fprintf(p.out, "%s %s %s\n\n",
		p.faint.Render(eventClock(event.Timestamp)),
		p.title.Render("campaign "+event.CampaignID+" started:"),
		event.CampaignName)
}

func (p *eventPrinter) printMessage(event *campaign.Event) {
	stageStyle := p.renderer.NewStyle().Foreground(p.stageColor(event.Stage)).Bold(true)
	fmt.Fprintf(p.out, "%s %s %s\n",
		p.faint.Render(eventClock(event.Timestamp)),
		stageStyle.Render("["+string(event.Stage)+"]"),
		p.title.Render(event.Role))
	fmt.Fprintf(p.out, "%s\n\n", indent(event.Content, "  "))
}

func (p *eventPrinter) printCompleted(event *campaign.Event) {
	color, ok := outcomeColors[event.Status]
	if !ok {
		color = lipgloss.Color("245")
	}
	outcomeStyle := p.renderer.NewStyle().Foreground(color).Bold(true)

	marker := "✓"
	if event.Status != campaign.StatusCompleted {
		marker = "✗"
	}
	fmt.Fprintf(p.out, "%s %s\n",
		p.faint.Render(eventClock(event.Timestamp)),
		outcomeStyle.Render(fmt.Sprintf("%s campaign %s", marker, event.Status)))
	if event.Summary != "" {
		fmt.Fprintf(p.out, "%s\n", indent(event.Summary, "  "))
	}
	if event.TotalMessages > 0 {
		detail := fmt.Sprintf("%d messages from %s",
			event.TotalMessages, strings.Join(event.AgentsInvolved, ", "))
		fmt.Fprintf(p.out, "%s\n", p.faint.Render("  "+detail))
	}
}

func (p *eventPrinter) printError(event *campaign.Event) {
	fmt.Fprintf(p.out, "%s %s\n",
		p.faint.Render(eventClock(event.Timestamp)),
		p.failure.Render(fmt.Sprintf("✗ %s stage failed: %s", event.Stage, event.Message)))
}

// printNotice writes an out-of-band stream notice (overflow warnings
// and the like) in the faint style.
func (p *eventPrinter) printNotice(message string) {
	fmt.Fprintf(p.out, "%s\n", p.faint.Render(message))
}

func (p *eventPrinter) stageColor(stage campaign.Stage) lipgloss.Color {
	if color, ok := stageColors[stage]; ok {
		return color
	}
	return lipgloss.Color("252")
}

// eventClock formats an event timestamp as a local wall-clock prefix.
// Dates are omitted: streams are watched live, and the full aggregate
// carries absolute timestamps for anyone reconstructing history.
func eventClock(unixNano int64) string {
	return time.Unix(0, unixNano).Local().Format("15:04:05")
}

// indent prefixes every line of text with the given prefix.
func indent(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}

// formatTime renders a stored unix-nanosecond timestamp for detail
// views.
func formatTime(unixNano int64) string {
	if unixNano == 0 {
		return ""
	}
	return time.Unix(0, unixNano).Local().Format("2006-01-02 15:04:05")
}

// formatAge renders how long ago a unix-nanosecond timestamp was, in
// the largest sensible unit. List tables use this; detail views show
// absolute times.
func formatAge(unixNano int64, now time.Time) string {
	if unixNano == 0 {
		return ""
	}
	age := now.Sub(time.Unix(0, unixNano))
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd", int(age.Hours()/24))
	}
}

// truncate shortens s to at most max runes, ellipsizing the tail.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return string(runes[:max-1]) + "…"
}
