// Package apqgen turns GraphQL documents into persisted-query manifests:
// a client build maps operation names to SHA-256 digests, a server build
// maps digests to the exact canonical query text clients will send.
package apqgen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/digiz3d/graphql-codegen-apq-ids/internal/apq"
	"github.com/digiz3d/graphql-codegen-apq-ids/internal/log"
)

// DefaultOutput is used when the config does not name an output file.
const DefaultOutput = "persisted-operations.json"

// Config drives one generation run.
type Config struct {
	// Queries lists filepath globs selecting the documents to persist.
	Queries []string `yaml:"queries"`
	// Schema optionally points at an SDL file. When set, documents are
	// validated against it before anything is hashed.
	Schema string `yaml:"schema"`
	// Mode is "client" (operation name to digest) or "server"
	// (digest to canonical query text).
	Mode string `yaml:"mode"`
	// Output is where GenerateFile writes the manifest.
	Output string `yaml:"output"`
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	err = yaml.Unmarshal(b, cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if len(cfg.Queries) == 0 {
		return nil, fmt.Errorf("config %s: queries must not be empty", path)
	}
	if cfg.Output == "" {
		cfg.Output = DefaultOutput
	}

	return cfg, nil
}

// Generate loads every configured document, runs the persisting pipeline and
// returns the manifest as pretty-printed JSON. Any error aborts the run with
// no output.
func Generate(ctx context.Context, cfg *Config) ([]byte, error) {
	logger := log.FromContext(ctx)

	mode, err := apq.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	paths, err := expandGlobs(cfg.Queries)
	if err != nil {
		return nil, err
	}

	docs := make([]*ast.QueryDocument, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read query document: %w", err)
		}

		doc, gErr := parser.ParseQuery(&ast.Source{
			Name:  p,
			Input: string(b),
		})
		if gErr != nil {
			return nil, gErr
		}

		docs = append(docs, doc)
	}
	logger.V(1).Info("query documents loaded", "files", len(docs))

	if cfg.Schema != "" {
		err := validateDocuments(cfg.Schema, docs)
		if err != nil {
			return nil, err
		}
	}

	mapping, err := apq.Generate(ctx, docs, mode)
	if err != nil {
		return nil, err
	}

	b, err := json.MarshalIndent(mapping, "", "   ")
	if err != nil {
		return nil, err
	}

	return append(b, '\n'), nil
}

// GenerateFile runs Generate and writes the manifest to cfg.Output.
func GenerateFile(ctx context.Context, cfg *Config) error {
	b, err := Generate(ctx, cfg)
	if err != nil {
		return err
	}

	err = os.WriteFile(cfg.Output, b, 0644)
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	log.FromContext(ctx).Info("manifest written", "path", cfg.Output, "mode", cfg.Mode)
	return nil
}

// expandGlobs resolves the query globs, deduplicated, in glob order then
// lexical file order. Document enumeration order decides last-write-wins
// conflicts downstream, so it must be stable.
func expandGlobs(globs []string) ([]string, error) {
	var paths []string
	seen := make(map[string]bool)
	for _, g := range globs {
		matches, err := filepath.Glob(g)
		if err != nil {
			return nil, fmt.Errorf("bad queries glob %q: %w", g, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("queries glob %q matched no files", g)
		}

		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			paths = append(paths, m)
		}
	}

	return paths, nil
}

func validateDocuments(schemaPath string, docs []*ast.QueryDocument) error {
	b, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	schema, gErr := gqlparser.LoadSchema(&ast.Source{
		Name:  schemaPath,
		Input: string(b),
	})
	if gErr != nil {
		return gErr
	}

	// fragments may be spread across files, so validate the merged corpus
	merged := &ast.QueryDocument{}
	for _, doc := range docs {
		merged.Operations = append(merged.Operations, doc.Operations...)
		merged.Fragments = append(merged.Fragments, doc.Fragments...)
	}

	if errs := validator.Validate(schema, merged); len(errs) > 0 {
		return errs
	}

	return nil
}
