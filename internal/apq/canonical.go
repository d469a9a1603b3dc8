package apq

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// CanonicalText prints an operation together with every fragment it uses:
// fragments first, in discovery order, operation last, one definition per
// block, joined by a single newline. The result is reproducible byte for
// byte from the same AST and is the exact input to Digest.
func CanonicalText(op *ast.OperationDefinition, fragments []*ast.FragmentDefinition) string {
	parts := make([]string, 0, len(fragments)+1)
	for _, frag := range fragments {
		parts = append(parts, formatDefinition(&ast.QueryDocument{
			Fragments: ast.FragmentDefinitionList{frag},
		}))
	}
	parts = append(parts, formatDefinition(&ast.QueryDocument{
		Operations: ast.OperationList{op},
	}))

	return strings.Join(parts, "\n")
}

// formatDefinition prints a single-definition document without the trailing
// newline the formatter emits after each definition.
func formatDefinition(doc *ast.QueryDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(doc)
	return strings.TrimRight(buf.String(), "\n")
}

// Digest returns the lowercase hexadecimal SHA-256 of text's UTF-8 bytes.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
