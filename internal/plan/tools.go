package plan

import "strings"

// Tool is one entry of the tool catalogue offered to the planner.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Catalog lists the tools steps may be routed to. A nil Catalog means no
// catalogue is configured.
type Catalog []Tool

// Has reports whether name is in the catalogue.
func (c Catalog) Has(name string) bool {
	for _, t := range c {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Names returns the tool names in catalogue order.
func (c Catalog) Names() []string {
	out := make([]string, len(c))
	for i, t := range c {
		out[i] = t.Name
	}
	return out
}

// String renders the catalogue one tool per line, for prompts.
func (c Catalog) String() string {
	var b strings.Builder
	for _, t := range c {
		b.WriteString("- ")
		b.WriteString(t.Name)
		if t.Description != "" {
			b.WriteString(": ")
			b.WriteString(t.Description)
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}
