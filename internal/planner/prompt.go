package planner

import (
	"fmt"
	"strings"

	"github.com/gonkalabs/shardguard/internal/plan"
)

const planningTemplate = `You are a task planner. Break the user request below into an ordered list of sub-tasks.

The request contains placeholder tokens such as [PASSWORD_1] or [EMAIL_2]. Each one stands for a
private value you cannot see.

Rules:
- Copy every placeholder token exactly as written. Never change, merge, translate or invent tokens.
- Use the smallest number of steps that puts each placeholder into its own step.
- A placeholder may appear in one step only. Steps that do not need a private value must not mention it.
- Keep each step self-contained and actionable. Do not add commentary.
{{tools}}
USER_REQUEST:
{{prompt}}
END.

Respond with JSON only, in exactly this format:
{{format}}`

const (
	plainFormat = `{"sub_prompts": [{"content": "first step"}, {"content": "second step"}]}`
	toolsFormat = `{"sub_prompts": [{"content": "first step", "suggested_tools": ["tool_name"]}, {"content": "second step", "suggested_tools": []}]}`
)

const toolsSection = `
Available tools:
%s

For each step list the tools it needs in "suggested_tools", using only the names above. Leave it empty
when no tool fits.
`

// BuildPrompt renders the planning instructions around the sanitized prompt.
// A non-empty catalog is listed so the model can route steps to tools.
func BuildPrompt(sanitized string, tools plan.Catalog) string {
	section, format := "", plainFormat
	if len(tools) > 0 {
		section = fmt.Sprintf(toolsSection, tools.String())
		format = toolsFormat
	}
	t := strings.NewReplacer("{{tools}}", section, "{{format}}", format).Replace(planningTemplate)
	return strings.Replace(t, "{{prompt}}", sanitized, 1)
}
