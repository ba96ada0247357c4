package scopegraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

func TestValidateLock_SchemaCatchesBadVersionPattern(t *testing.T) {
	lock := sampleLock()
	lock.Metadata.Version = "not-a-version"
	data, err := Marshal(lock) // re-stamps a valid checksum over the mutated content
	require.NoError(t, err)
	reparsed, err := Unmarshal(data)
	require.NoError(t, err)

	g := NewGenerator()
	report, verr := g.ValidateLock(context.Background(), reparsed, t.TempDir(), ValidationSchema)
	require.NoError(t, verr)
	assert.False(t, report.OK())
	assertHasCode(t, report, rerrors.CodeSchemaViolation)
}

func TestValidateLock_BusinessCatchesBrokenReference(t *testing.T) {
	lock := sampleLock()
	lock.Scopes["api"] = LockedScope{Name: "api", Dependencies: []string{"ghost"}}
	data, err := Marshal(lock)
	require.NoError(t, err)
	lock2, err := Unmarshal(data)
	require.NoError(t, err)

	g := NewGenerator()
	report, err := g.ValidateLock(context.Background(), lock2, t.TempDir(), ValidationBusiness)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assertHasCode(t, report, rerrors.CodeBrokenReference)
}

func TestValidateLock_FullCatchesStaleLock(t *testing.T) {
	repoRoot := t.TempDir()
	writeScope(t, repoRoot, "api", "name: api\ntype: service\nversion: 1.0.0\n")

	g := NewGenerator()
	lock, err := g.GenerateLock(context.Background(), repoRoot, DefaultGeneratorConfig(), BranchInfo{})
	require.NoError(t, err)

	// Mutate the scope on disk after the lock was generated.
	writeScope(t, repoRoot, "api", "name: api\ntype: service\nversion: 2.0.0\n")

	report, err := g.ValidateLock(context.Background(), lock, repoRoot, ValidationFull)
	require.NoError(t, err)
	assert.False(t, report.OK())
	assertHasCode(t, report, rerrors.CodeStaleLock)
}

func TestValidateLock_CleanLockPasses(t *testing.T) {
	repoRoot := t.TempDir()
	writeScope(t, repoRoot, "api", "name: api\ntype: service\nversion: 1.0.0\n")

	g := NewGenerator()
	lock, err := g.GenerateLock(context.Background(), repoRoot, DefaultGeneratorConfig(), BranchInfo{
		CommitHash: "abc123abc123abc123abc123abc123abc123abcd",
	})
	require.NoError(t, err)

	report, err := g.ValidateLock(context.Background(), lock, repoRoot, ValidationFull)
	require.NoError(t, err)
	assert.True(t, report.OK(), "%+v", report.Issues)
}

func assertHasCode(t *testing.T, report ValidationReport, code rerrors.Code) {
	t.Helper()
	for _, issue := range report.Issues {
		if issue.Code == code {
			return
		}
	}
	t.Fatalf("expected an issue with code %s, got %+v", code, report.Issues)
}
