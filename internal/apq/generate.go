package apq

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/digiz3d/graphql-codegen-apq-ids/internal/log"
)

// Mode selects what the generated mapping is keyed by.
type Mode string

const (
	// ModeClient maps operation name to digest, for client bundles.
	ModeClient Mode = "client"
	// ModeServer maps digest to canonical query text, for server allowlists.
	ModeServer Mode = "server"
)

// Error codes carried in gqlerror extensions.
const (
	codeInvalidMode          = "INVALID_MODE"
	codeMissingOperationName = "MISSING_OPERATION_NAME"
	codeUnknownFragment      = "UNKNOWN_FRAGMENT"
	codeFragmentCycle        = "FRAGMENT_CYCLE"
)

// ParseMode validates a configured mode string. Mode strings are compared
// here and nowhere else; everything downstream switches on the typed value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeClient:
		return ModeClient, nil
	case ModeServer:
		return ModeServer, nil
	default:
		return "", errorWithCode(nil, codeInvalidMode, "invalid mode %q, want %q or %q", s, ModeClient, ModeServer)
	}
}

// Generate runs the whole pipeline over the given documents: normalize every
// selection set with __typename, index the fragments, and for each operation
// hash the canonical text of the operation plus its transitively used
// fragments. The result maps operation name to digest in client mode and
// digest to canonical text in server mode.
//
// Any error aborts the run with no output. Duplicate keys overwrite silently,
// last write wins in enumeration order.
func Generate(ctx context.Context, docs []*ast.QueryDocument, mode Mode) (map[string]string, error) {
	logger := log.FromContext(ctx)

	switch mode {
	case ModeClient, ModeServer:
	default:
		return nil, errorWithCode(nil, codeInvalidMode, "invalid mode %q, want %q or %q", mode, ModeClient, ModeServer)
	}

	normalized := make([]*ast.QueryDocument, 0, len(docs))
	for _, doc := range docs {
		normalized = append(normalized, AddTypename(doc))
	}

	index := buildFragmentIndex(normalized)
	logger.V(1).Info("fragment index built", "fragments", len(index))

	out := make(map[string]string)
	for _, doc := range normalized {
		for _, op := range doc.Operations {
			if op.Name == "" {
				return nil, errorWithCode(op.Position, codeMissingOperationName, "operations must be named to be persisted")
			}

			used, err := resolveUsedFragments(op, index)
			if err != nil {
				return nil, err
			}

			text := CanonicalText(op, used.list())
			digest := Digest(text)
			logger.V(1).Info("operation digested", "operation", op.Name, "usedFragments", len(used.names), "digest", digest)

			switch mode {
			case ModeClient:
				if _, ok := out[op.Name]; ok {
					logger.V(1).Info("duplicate operation name overwrites earlier digest", "operation", op.Name)
				}
				out[op.Name] = digest
			case ModeServer:
				out[digest] = text
			}
		}
	}

	return out, nil
}

func errorWithCode(pos *ast.Position, code string, format string, args ...interface{}) *gqlerror.Error {
	var gErr *gqlerror.Error
	if pos != nil && pos.Src != nil {
		gErr = gqlerror.ErrorPosf(pos, format, args...)
	} else {
		gErr = gqlerror.Errorf(format, args...)
	}
	if gErr.Extensions == nil {
		gErr.Extensions = make(map[string]interface{})
	}
	gErr.Extensions["code"] = code
	return gErr
}
