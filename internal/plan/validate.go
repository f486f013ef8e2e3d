package plan

import (
	"fmt"

	"github.com/gonkalabs/shardguard/internal/vault"
)

// Validate turns a raw decomposition into a Plan. Steps keep the planner's
// order and are numbered 1..N. Every placeholder in a step must exist in
// store, and each token may be referenced by one step only: a plan that
// spreads a token across steps is rejected rather than repaired. The
// returned plan holds only the tokens its steps reference.
//
// OriginalPrompt and RequestID are left for the caller to fill in.
// Suggested tools are dropped; use ValidateCatalog to keep them.
func Validate(raw RawDecomposition, store *vault.Store) (*Plan, error) {
	return ValidateCatalog(raw, store, nil)
}

// ValidateCatalog is Validate with a tool catalogue. Every suggested tool
// must be in catalog, otherwise the plan is MalformedOutput. With a nil
// catalog suggestions are dropped.
func ValidateCatalog(raw RawDecomposition, store *vault.Store, catalog Catalog) (*Plan, error) {
	if len(raw) == 0 {
		return nil, &Error{Kind: EmptyPlan}
	}

	owner := make(map[string]int)
	var used []string
	steps := make([]SubPrompt, 0, len(raw))
	for i, rs := range raw {
		id := i + 1
		tokens := vault.FindTokens(rs.Content)
		for _, tok := range tokens {
			if !store.Contains(tok) {
				return nil, &Error{Kind: DanglingReference, Step: id, Token: tok}
			}
			if first, ok := owner[tok]; ok {
				return nil, &Error{
					Kind:  TokenAliasing,
					Step:  id,
					Token: tok,
					Err:   fmt.Errorf("already referenced by step %d", first),
				}
			}
			owner[tok] = id
			used = append(used, tok)
		}
		tools, err := checkTools(id, rs.SuggestedTools, catalog)
		if err != nil {
			return nil, err
		}
		steps = append(steps, SubPrompt{
			ID:             id,
			Content:        rs.Content,
			RequiredTokens: tokens,
			SuggestedTools: tools,
		})
	}

	return &Plan{SubPrompts: steps, store: store.Subset(used)}, nil
}

func checkTools(step int, names []string, catalog Catalog) ([]string, error) {
	if catalog == nil || len(names) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !catalog.Has(n) {
			return nil, &Error{Kind: MalformedOutput, Step: step, Err: fmt.Errorf("unknown tool %q", n)}
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out, nil
}
