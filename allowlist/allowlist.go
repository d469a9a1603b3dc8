// Package allowlist enforces a server-mode persisted-query manifest inside a
// gqlgen handler chain: requests identified by digest get the registered
// query text substituted in, everything unregistered is rejected.
package allowlist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/errcode"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

const (
	errPersistedQueryNotFound     = "PersistedQueryNotFound"
	errPersistedQueryNotFoundCode = "PERSISTED_QUERY_NOT_FOUND"
)

// Allowlist restricts a gqlgen server to the queries of one manifest.
type Allowlist struct {
	queries map[string]string // digest -> canonical query text
	byText  map[string]bool   // canonical query text -> registered

	allowUnpersisted bool
}

var _ interface {
	graphql.HandlerExtension
	graphql.OperationParameterMutator
} = (*Allowlist)(nil)

type Option func(*Allowlist)

// AllowUnpersisted lets requests without the persistedQuery extension
// through unchecked, for clients that have not migrated yet.
func AllowUnpersisted() Option {
	return func(a *Allowlist) {
		a.allowUnpersisted = true
	}
}

// New builds an allowlist from a digest-to-query-text mapping, typically the
// decoded result of a server-mode generation run.
func New(queries map[string]string, opts ...Option) *Allowlist {
	a := &Allowlist{
		queries: make(map[string]string, len(queries)),
		byText:  make(map[string]bool, len(queries)),
	}
	for digest, query := range queries {
		a.queries[digest] = query
		a.byText[query] = true
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// FromManifest parses the JSON written by a server-mode generation run.
func FromManifest(manifest []byte, opts ...Option) (*Allowlist, error) {
	queries := make(map[string]string)
	err := json.Unmarshal(manifest, &queries)
	if err != nil {
		return nil, fmt.Errorf("parse persisted query manifest: %w", err)
	}

	return New(queries, opts...), nil
}

// Len reports how many queries are registered.
func (a *Allowlist) Len() int {
	return len(a.queries)
}

func (a *Allowlist) ExtensionName() string {
	return "PersistedQueryAllowlist"
}

func (a *Allowlist) Validate(schema graphql.ExecutableSchema) error {
	if len(a.queries) == 0 {
		return fmt.Errorf("allowlist: no persisted queries registered")
	}
	return nil
}

func (a *Allowlist) MutateOperationParameters(ctx context.Context, rawParams *graphql.RawParams) *gqlerror.Error {
	if ext, ok := rawParams.Extensions["persistedQuery"].(map[string]interface{}); ok {
		hash, _ := ext["sha256Hash"].(string)

		query, ok := a.queries[hash]
		if !ok {
			err := gqlerror.Errorf(errPersistedQueryNotFound)
			errcode.Set(err, errPersistedQueryNotFoundCode)
			return err
		}

		rawParams.Query = query
		return nil
	}

	if a.allowUnpersisted {
		return nil
	}
	if a.byText[rawParams.Query] {
		return nil
	}

	err := gqlerror.Errorf("only persisted queries are accepted")
	errcode.Set(err, errcode.ValidationFailed)
	return err
}
