// Package testutils holds the shared fixture helpers: golden-file
// comparison and `# option:` comment parsing for .graphql test assets.
package testutils

// TestingT is the subset of *testing.T the helpers need.
type TestingT interface {
	Helper()
	Log(args ...interface{})
	Logf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
}
