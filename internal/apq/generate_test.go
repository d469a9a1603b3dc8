package apq

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"strings"
	"testing"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/go-logr/logr/testr"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/digiz3d/graphql-codegen-apq-ids/internal/log"
)

func testContext(t *testing.T) context.Context {
	return log.WithLogger(context.Background(), testr.New(t))
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	if mode, err := ParseMode("client"); err != nil || mode != ModeClient {
		t.Errorf("ParseMode(client): got %v, %v", mode, err)
	}
	if mode, err := ParseMode("server"); err != nil || mode != ModeServer {
		t.Errorf("ParseMode(server): got %v, %v", mode, err)
	}

	_, err := ParseMode("both")
	if err == nil {
		t.Fatal("ParseMode(both): want error, got nil")
	}
	gErr, ok := err.(*gqlerror.Error)
	if !ok {
		t.Fatalf("error is %T, want *gqlerror.Error", err)
	}
	if got, want := gErr.Extensions["code"], codeInvalidMode; got != want {
		t.Errorf("error code: got %v, want %v", got, want)
	}
}

func TestGenerateInvalidMode(t *testing.T) {
	t.Parallel()

	docs := []*ast.QueryDocument{parseQuery(t, `query Foo { field }`)}

	out, err := Generate(testContext(t), docs, Mode("both"))
	if err == nil {
		t.Fatal("want error, got nil")
	}
	if out != nil {
		t.Errorf("output must be nil on failure, got %v", out)
	}
	if got := err.(*gqlerror.Error).Extensions["code"]; got != codeInvalidMode {
		t.Errorf("error code: got %v, want %v", got, codeInvalidMode)
	}
}

func TestGenerateMissingOperationName(t *testing.T) {
	t.Parallel()

	docs := []*ast.QueryDocument{parseQuery(t, `query { field }`)}

	out, err := Generate(testContext(t), docs, ModeClient)
	if err == nil {
		t.Fatal("want error, got nil")
	}
	if out != nil {
		t.Errorf("output must be nil on failure, got %v", out)
	}
	if got := err.(*gqlerror.Error).Extensions["code"]; got != codeMissingOperationName {
		t.Errorf("error code: got %v, want %v", got, codeMissingOperationName)
	}
}

func TestGenerateUnknownFragmentAbortsRun(t *testing.T) {
	t.Parallel()

	docs := []*ast.QueryDocument{parseQuery(t, heredoc.Doc(`
		query Good {
		  field
		}
		query Bad {
		  ...Nope
		}
	`))}

	out, err := Generate(testContext(t), docs, ModeClient)
	if err == nil {
		t.Fatal("want error, got nil")
	}
	if out != nil {
		t.Errorf("no partial output allowed, got %v", out)
	}
}

func TestGenerateClientAndServerAgree(t *testing.T) {
	t.Parallel()

	source := heredoc.Doc(`
		query GetUser {
		  user {
		    ...UserBits
		  }
		}
		fragment UserBits on User {
		  id
		}
	`)

	client, err := Generate(testContext(t), []*ast.QueryDocument{parseQuery(t, source)}, ModeClient)
	if err != nil {
		t.Fatal(err)
	}
	server, err := Generate(testContext(t), []*ast.QueryDocument{parseQuery(t, source)}, ModeServer)
	if err != nil {
		t.Fatal(err)
	}

	digest, ok := client["GetUser"]
	if !ok {
		t.Fatalf("client mapping misses the operation: %v", client)
	}
	if len(digest) != 64 || strings.ToLower(digest) != digest {
		t.Errorf("digest is not lowercase hex sha256: %q", digest)
	}

	text, ok := server[digest]
	if !ok {
		t.Fatalf("server mapping misses the client digest %s: %v", digest, server)
	}

	sum := sha256.Sum256([]byte(text))
	if got := hex.EncodeToString(sum[:]); got != digest {
		t.Errorf("server key is not the sha256 of its text: key %s, hash %s", digest, got)
	}
}

func TestGenerateCanonicalTextShape(t *testing.T) {
	t.Parallel()

	docs := []*ast.QueryDocument{parseQuery(t, heredoc.Doc(`
		query Op {
		  user {
		    ...Frag
		  }
		}
		fragment Frag on User {
		  id
		  ...Inner
		}
		fragment Inner on User {
		  name
		}
	`))}

	out, err := Generate(testContext(t), docs, ModeServer)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("want 1 entry, got %d", len(out))
	}

	var text string
	for _, v := range out {
		text = v
	}

	fragIdx := strings.Index(text, "fragment Frag")
	innerIdx := strings.Index(text, "fragment Inner")
	opIdx := strings.Index(text, "query Op")
	if fragIdx < 0 || innerIdx < 0 || opIdx < 0 {
		t.Fatalf("canonical text misses definitions:\n%s", text)
	}
	if !(fragIdx < innerIdx && innerIdx < opIdx) {
		t.Errorf("canonical order must be fragments in discovery order then operation:\n%s", text)
	}
	if !strings.Contains(text, "__typename") {
		t.Errorf("canonical text is not normalized:\n%s", text)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	t.Parallel()

	source := heredoc.Doc(`
		query GetUser {
		  user {
		    id
		    friends {
		      name
		    }
		  }
		}
	`)

	first, err := Generate(testContext(t), []*ast.QueryDocument{parseQuery(t, source)}, ModeServer)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Generate(testContext(t), []*ast.QueryDocument{parseQuery(t, source)}, ModeServer)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("two runs differ:\n%v\n%v", first, second)
	}
}

func TestGenerateDistinctOperationsDistinctDigests(t *testing.T) {
	t.Parallel()

	docs := []*ast.QueryDocument{
		parseQuery(t, `query A { user { id } }`),
		parseQuery(t, `query B { user { name } }`),
	}

	out, err := Generate(testContext(t), docs, ModeClient)
	if err != nil {
		t.Fatal(err)
	}

	if out["A"] == out["B"] {
		t.Errorf("different operations produced the same digest: %s", out["A"])
	}
}

func TestGenerateIdenticalOperationsIdenticalDigests(t *testing.T) {
	t.Parallel()

	docA := parseQuery(t, `query Same { user { id } }`)
	docB := parseQuery(t, `query Same { user { id } }`)

	a, err := Generate(testContext(t), []*ast.QueryDocument{docA}, ModeClient)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Generate(testContext(t), []*ast.QueryDocument{docB}, ModeClient)
	if err != nil {
		t.Fatal(err)
	}

	if a["Same"] != b["Same"] {
		t.Errorf("identical operations produced different digests: %s vs %s", a["Same"], b["Same"])
	}
}

func TestGenerateDuplicateNameLastWriteWins(t *testing.T) {
	t.Parallel()

	docs := []*ast.QueryDocument{
		parseQuery(t, `query Dup { user { id } }`),
		parseQuery(t, `query Dup { user { name } }`),
	}

	out, err := Generate(testContext(t), docs, ModeClient)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("want 1 entry, got %d", len(out))
	}

	later, err := Generate(testContext(t), docs[1:], ModeClient)
	if err != nil {
		t.Fatal(err)
	}
	if out["Dup"] != later["Dup"] {
		t.Errorf("duplicate name must keep the later digest: got %s, want %s", out["Dup"], later["Dup"])
	}
}
