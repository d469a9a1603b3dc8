package apq

import (
	"github.com/vektah/gqlparser/v2/ast"
)

type fragmentIndex map[string]*ast.FragmentDefinition

// buildFragmentIndex collects every fragment definition across docs into a
// single lookup table. A later fragment with the same name silently replaces
// an earlier one.
func buildFragmentIndex(docs []*ast.QueryDocument) fragmentIndex {
	index := make(fragmentIndex)
	for _, doc := range docs {
		for _, frag := range doc.Fragments {
			index[frag.Name] = frag
		}
	}
	return index
}

// usedFragments records fragments in the order the resolver first discovered
// them. Canonical printing depends on that order, so it must survive lookup
// deduplication.
type usedFragments struct {
	names  []string
	byName map[string]*ast.FragmentDefinition
}

func newUsedFragments() *usedFragments {
	return &usedFragments{
		byName: make(map[string]*ast.FragmentDefinition),
	}
}

// add records frag unless a fragment with the same name was discovered
// earlier. It reports whether the fragment was newly recorded.
func (uf *usedFragments) add(frag *ast.FragmentDefinition) bool {
	if _, ok := uf.byName[frag.Name]; ok {
		return false
	}
	uf.names = append(uf.names, frag.Name)
	uf.byName[frag.Name] = frag
	return true
}

func (uf *usedFragments) list() []*ast.FragmentDefinition {
	frags := make([]*ast.FragmentDefinition, 0, len(uf.names))
	for _, name := range uf.names {
		frags = append(frags, uf.byName[name])
	}
	return frags
}

// resolveUsedFragments walks the operation's selection tree depth-first and
// returns every fragment it transitively spreads, in first-discovery order.
// A spread whose name is missing from index fails the whole run, as does a
// fragment that directly or transitively spreads itself.
func resolveUsedFragments(op *ast.OperationDefinition, index fragmentIndex) (*usedFragments, error) {
	used := newUsedFragments()
	err := collectFragmentSpreads(op.SelectionSet, index, used, make(map[string]bool))
	if err != nil {
		return nil, err
	}
	return used, nil
}

func collectFragmentSpreads(selectionSet ast.SelectionSet, index fragmentIndex, used *usedFragments, walking map[string]bool) error {
	for _, selection := range selectionSet {
		switch selection := selection.(type) {
		case *ast.Field:
			err := collectFragmentSpreads(selection.SelectionSet, index, used, walking)
			if err != nil {
				return err
			}

		case *ast.InlineFragment:
			err := collectFragmentSpreads(selection.SelectionSet, index, used, walking)
			if err != nil {
				return err
			}

		case *ast.FragmentSpread:
			frag, ok := index[selection.Name]
			if !ok {
				return errorWithCode(selection.Position, codeUnknownFragment, "unknown fragment: %s", selection.Name)
			}
			if walking[selection.Name] {
				return errorWithCode(selection.Position, codeFragmentCycle, "fragment cycle detected via %s", selection.Name)
			}
			if !used.add(frag) {
				// already resolved through an earlier spread
				continue
			}

			walking[selection.Name] = true
			err := collectFragmentSpreads(frag.SelectionSet, index, used, walking)
			if err != nil {
				return err
			}
			delete(walking, selection.Name)
		}
	}

	return nil
}
