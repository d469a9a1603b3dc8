package apq

import (
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

// typenameField is the marker appended to instrumented selection sets.
// It is never written after construction, so sharing the node between
// every rewritten selection set is safe.
var typenameField = &ast.Field{
	Alias: "__typename",
	Name:  "__typename",
}

// AddTypename returns a copy of doc in which every selection set, except the
// root selection set of each operation, carries a trailing __typename field.
//
// Selection sets that already request an introspection field (any field whose
// name starts with "__") are left untouched, which also makes the transform
// idempotent. The input document is never modified; rewritten nodes are
// shallow copies with fresh selection lists.
func AddTypename(doc *ast.QueryDocument) *ast.QueryDocument {
	copied := *doc

	copied.Operations = make(ast.OperationList, 0, len(doc.Operations))
	for _, op := range doc.Operations {
		opCopied := *op
		// The operation root stays bare, only nested sets get the marker.
		opCopied.SelectionSet = addTypenameToSelectionSet(op.SelectionSet, false)
		copied.Operations = append(copied.Operations, &opCopied)
	}

	copied.Fragments = make(ast.FragmentDefinitionList, 0, len(doc.Fragments))
	for _, frag := range doc.Fragments {
		fragCopied := *frag
		fragCopied.SelectionSet = addTypenameToSelectionSet(frag.SelectionSet, true)
		copied.Fragments = append(copied.Fragments, &fragCopied)
	}

	return &copied
}

func addTypenameToSelectionSet(selectionSet ast.SelectionSet, instrument bool) ast.SelectionSet {
	if len(selectionSet) == 0 {
		return selectionSet
	}

	newSet := make(ast.SelectionSet, 0, len(selectionSet)+1)
	for _, selection := range selectionSet {
		switch selection := selection.(type) {
		case *ast.Field:
			copiedField := *selection
			copiedField.SelectionSet = addTypenameToSelectionSet(selection.SelectionSet, true)
			newSet = append(newSet, &copiedField)
		case *ast.InlineFragment:
			copiedInline := *selection
			copiedInline.SelectionSet = addTypenameToSelectionSet(selection.SelectionSet, true)
			newSet = append(newSet, &copiedInline)
		default:
			// fragment spreads carry no selections of their own
			newSet = append(newSet, selection)
		}
	}

	if instrument && !hasIntrospectionField(selectionSet) {
		newSet = append(newSet, typenameField)
	}

	return newSet
}

// hasIntrospectionField reports whether the set already selects __typename or
// any other introspection field. Such sets are either instrumented already or
// are introspection queries themselves, and stay as-is.
func hasIntrospectionField(selectionSet ast.SelectionSet) bool {
	for _, selection := range selectionSet {
		field, ok := selection.(*ast.Field)
		if !ok {
			continue
		}
		if strings.HasPrefix(field.Name, "__") {
			return true
		}
	}
	return false
}
