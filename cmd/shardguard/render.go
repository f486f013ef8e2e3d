package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gonkalabs/shardguard/internal/dispatch"
	"github.com/gonkalabs/shardguard/internal/plan"
	"github.com/gonkalabs/shardguard/internal/sanitize"
)

var (
	brandPrimary = lipgloss.Color("#7C3AED")
	brandAccent  = lipgloss.Color("#10B981")
	brandError   = lipgloss.Color("#EF4444")
	brandToken   = lipgloss.Color("#F59E0B")
	textMuted    = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().
			Foreground(brandPrimary).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(textMuted)

	promptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(brandPrimary).
			Padding(0, 1)

	stepIDStyle = lipgloss.NewStyle().
			Foreground(brandAccent).
			Bold(true).
			Width(4).
			Align(lipgloss.Right)

	tokenStyle = lipgloss.NewStyle().
			Foreground(brandToken)

	errorStyle = lipgloss.NewStyle().
			Foreground(brandError).
			Bold(true)
)

// renderPlan writes the human-readable plan. Values are never printed;
// use --json for the full artifact.
func renderPlan(w io.Writer, p *plan.Plan) {
	fmt.Fprintln(w, titleStyle.Render("Plan")+" "+labelStyle.Render(p.RequestID))
	fmt.Fprintln(w, labelStyle.Render("Sanitized prompt"))
	fmt.Fprintln(w, promptStyle.Render(p.OriginalPrompt))
	fmt.Fprintln(w)

	for _, sp := range p.SubPrompts {
		fmt.Fprintln(w, stepIDStyle.Render(fmt.Sprintf("%d.", sp.ID))+" "+sp.Content)
		if len(sp.SuggestedTools) > 0 {
			fmt.Fprintln(w, strings.Repeat(" ", 7)+labelStyle.Render("tools: "+strings.Join(sp.SuggestedTools, ", ")))
		}
		for _, tok := range sp.RequiredTokens {
			cat, _ := p.Category(tok)
			fmt.Fprintln(w, strings.Repeat(" ", 7)+tokenStyle.Render(tok)+" "+labelStyle.Render(cat))
		}
	}

	if tokens := p.Tokens(); len(tokens) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, labelStyle.Render(fmt.Sprintf("%d masked value(s) scoped to their steps", len(tokens))))
	}
}

func renderResults(w io.Writer, results []dispatch.Result) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Results"))
	for _, r := range results {
		fmt.Fprintln(w, stepIDStyle.Render(fmt.Sprintf("%d.", r.Step))+" "+labelStyle.Render(r.Tool)+" "+string(r.Output))
	}
}

func renderTools(w io.Writer, tools plan.Catalog, fallback string) {
	if tools == nil {
		fmt.Fprintln(w, labelStyle.Render("The tool server publishes no catalogue; every step goes to "+fallback+"."))
		return
	}
	fmt.Fprintln(w, titleStyle.Render("Tools")+" "+labelStyle.Render("(default "+fallback+")"))
	for i, t := range tools {
		line := stepIDStyle.Render(fmt.Sprintf("%d.", i+1)) + " " + t.Name
		if t.Description != "" {
			line += " " + labelStyle.Render(t.Description)
		}
		fmt.Fprintln(w, line)
	}
}

func renderDetectors(w io.Writer, san *sanitize.Sanitizer) {
	fmt.Fprintln(w, titleStyle.Render("Detectors")+" "+labelStyle.Render(fmt.Sprintf("(min length %d)", san.MinLength())))
	for i, d := range san.Detectors() {
		line := stepIDStyle.Render(fmt.Sprintf("%d.", i+1)) + " " + d.Name() + " " + labelStyle.Render(d.Category())
		if p, ok := d.(interface{ Pattern() string }); ok {
			line += "\n" + strings.Repeat(" ", 7) + tokenStyle.Render(p.Pattern())
		}
		fmt.Fprintln(w, line)
	}
}
