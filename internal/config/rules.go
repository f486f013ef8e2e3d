package config

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gonkalabs/shardguard/internal/sanitize"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule is one detector rule from a rules file.
type Rule struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Kind     string `yaml:"kind"` // alias for Category
	Pattern  string `yaml:"pattern"`
	Flags    Flags  `yaml:"flags"`
}

// Flags is a list of regex flag names. A single string is accepted too.
type Flags []string

func (f *Flags) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value != "" {
			*f = Flags{node.Value}
		}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*f = list
		return nil
	}
	return fmt.Errorf("line %d: flags must be a string or a list", node.Line)
}

var flagPrefix = map[string]string{
	"IGNORECASE": "i",
	"MULTILINE":  "m",
	"DOTALL":     "s",
}

// EffectiveCategory returns the category, falling back to kind and then name.
func (r Rule) EffectiveCategory() string {
	switch {
	case r.Category != "":
		return r.Category
	case r.Kind != "":
		return r.Kind
	}
	return r.Name
}

// Compile builds the detector for r.
func (r Rule) Compile() (*sanitize.PatternDetector, error) {
	if strings.TrimSpace(r.Name) == "" {
		return nil, fmt.Errorf("rule has no name")
	}
	if strings.EqualFold(r.Name, "reserved") {
		return nil, fmt.Errorf("rule %q: name is reserved", r.Name)
	}
	if r.Pattern == "" {
		return nil, fmt.Errorf("rule %q: empty pattern", r.Name)
	}
	var mods strings.Builder
	for _, fl := range r.Flags {
		m, ok := flagPrefix[strings.ToUpper(strings.TrimSpace(fl))]
		if !ok {
			return nil, fmt.Errorf("rule %q: unsupported flag %q", r.Name, fl)
		}
		mods.WriteString(m)
	}
	pattern := r.Pattern
	if mods.Len() > 0 {
		pattern = "(?" + mods.String() + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", r.Name, err)
	}
	return sanitize.NewPatternDetector(r.Name, r.EffectiveCategory(), re), nil
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRules decodes a rules document.
func ParseRules(data []byte) ([]Rule, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("rules: no rules defined")
	}
	return rf.Rules, nil
}

// DefaultRules returns the built-in rule set.
func DefaultRules() []Rule {
	rules, err := ParseRules(defaultRules)
	if err != nil {
		panic("config: built-in rules: " + err.Error())
	}
	return rules
}

// LoadRules reads the rules file at path, or the built-in set when path is
// empty.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: %w", err)
	}
	return ParseRules(data)
}

// Detectors compiles rules in order.
func Detectors(rules []Rule) ([]sanitize.Detector, error) {
	out := make([]sanitize.Detector, 0, len(rules))
	for _, r := range rules {
		d, err := r.Compile()
		if err != nil {
			return nil, fmt.Errorf("rules: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// BuildSanitizer compiles rules and adds the entropy detector when enabled.
func (c *Cfg) BuildSanitizer(rules []Rule) (*sanitize.Sanitizer, error) {
	dets, err := Detectors(rules)
	if err != nil {
		return nil, err
	}
	if c.Sanitize.Entropy {
		dets = append(dets, sanitize.EntropyDetector{
			MinLength: c.Sanitize.EntropyMinLength,
			Threshold: c.Sanitize.EntropyThreshold,
		})
	}
	return sanitize.New(dets, sanitize.Options{MinLength: c.Sanitize.MinLength}), nil
}

// NewSanitizer loads the configured rules and builds a Sanitizer.
func (c *Cfg) NewSanitizer() (*sanitize.Sanitizer, error) {
	rules, err := LoadRules(c.Sanitize.RulesFile)
	if err != nil {
		return nil, err
	}
	return c.BuildSanitizer(rules)
}
