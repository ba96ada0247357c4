package scopegraph

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Masterminds/semver"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// ValidationLevel mirrors store.Level's three-tier shape for validate_lock
// (§4.A): schema checks structure only, business adds graph-consistency
// checks, full additionally compares the lock against the live repository.
type ValidationLevel string

const (
	ValidationSchema   ValidationLevel = "schema"
	ValidationBusiness ValidationLevel = "business"
	ValidationFull     ValidationLevel = "full"
)

// ValidationIssue is one finding from validate_lock.
type ValidationIssue struct {
	Code    rerrors.Code
	Message string
	Path    string
}

// ValidationReport is validate_lock's return value.
type ValidationReport struct {
	Level  ValidationLevel
	Issues []ValidationIssue
}

// OK reports whether no issues were found.
func (r ValidationReport) OK() bool { return len(r.Issues) == 0 }

var (
	versionPattern    = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	commitHashPattern = regexp.MustCompile(`^[a-f0-9]{40}$`)
)

// ValidateLock implements validate_lock(lock, repo_root, level) -> ValidationReport
// (§4.A). Schema-level issues are always checked regardless of level;
// business and full add progressively more.
func (g *Generator) ValidateLock(ctx context.Context, lock LockFile, repoRoot string, level ValidationLevel) (ValidationReport, error) {
	report := ValidationReport{Level: level}
	report.Issues = append(report.Issues, schemaIssues(lock)...)

	if level == ValidationSchema {
		return report, nil
	}

	report.Issues = append(report.Issues, businessIssues(lock)...)

	if level == ValidationFull {
		select {
		case <-ctx.Done():
			return report, rerrors.Wrap(rerrors.CodeCancelled, "validate_lock cancelled", ctx.Err())
		default:
		}
		issues, err := freshnessIssues(ctx, lock, repoRoot)
		if err != nil {
			return report, err
		}
		report.Issues = append(report.Issues, issues...)
	}

	return report, nil
}

func schemaIssues(lock LockFile) []ValidationIssue {
	var issues []ValidationIssue

	if !versionPattern.MatchString(lock.Metadata.Version) {
		issues = append(issues, ValidationIssue{
			Code: rerrors.CodeSchemaViolation, Message: "metadata.version does not match ^\\d+\\.\\d+\\.\\d+$",
			Path: "metadata.version",
		})
	}
	if h := lock.Metadata.RepositoryInfo.CommitHash; h != "" && !commitHashPattern.MatchString(h) {
		issues = append(issues, ValidationIssue{
			Code: rerrors.CodeSchemaViolation, Message: "repository_info.commit_hash is not a 40-character hex SHA",
			Path: "metadata.repository_info.commit_hash",
		})
	}
	if err := VerifyChecksum(lock); err != nil {
		issues = append(issues, ValidationIssue{
			Code: rerrors.CodeChecksumMismatch, Message: err.Error(), Path: "checksum",
		})
	}
	if lock.Scopes == nil {
		issues = append(issues, ValidationIssue{Code: rerrors.CodeSchemaViolation, Message: "scopes field is required", Path: "scopes"})
	}
	if lock.Dependencies == nil {
		issues = append(issues, ValidationIssue{Code: rerrors.CodeSchemaViolation, Message: "dependencies field is required", Path: "dependencies"})
	}
	return issues
}

// businessIssues checks scope existence, version consistency, constraint
// satisfaction and circular-dependency absence (§4.A business rules).
func businessIssues(lock LockFile) []ValidationIssue {
	var issues []ValidationIssue

	edges := make(map[string][]string, len(lock.Scopes))
	for name, sc := range lock.Scopes {
		edges[name] = append([]string(nil), sc.Dependencies...)
		for _, dep := range sc.Dependencies {
			if _, ok := lock.Scopes[dep]; !ok {
				// Dependency may legitimately name an external (non-scope)
				// dependency tracked only under lock.Dependencies.
				if _, external := lock.Dependencies[dep]; !external {
					issues = append(issues, ValidationIssue{
						Code:    rerrors.CodeBrokenReference,
						Message: fmt.Sprintf("scope %q depends on unknown target %q", name, dep),
						Path:    fmt.Sprintf("scopes.%s.dependencies", name),
					})
				}
			}
		}
	}

	if err := checkAcyclic(edges); err != nil {
		issues = append(issues, ValidationIssue{Code: rerrors.CodeCircularDependency, Message: err.Error(), Path: "scopes"})
	}

	for name, dep := range lock.Dependencies {
		for scopeName, constraint := range dep.PerScopeConstraint {
			if constraint == "" {
				continue
			}
			c, err := semver.NewConstraint(constraint)
			if err != nil {
				issues = append(issues, ValidationIssue{
					Code: rerrors.CodeParseError, Message: fmt.Sprintf("invalid constraint %q for dependency %q", constraint, name),
					Path: fmt.Sprintf("dependencies.%s.per_scope_constraint.%s", name, scopeName),
				})
				continue
			}
			v, err := semver.NewVersion(dep.ResolvedVersion)
			if err != nil {
				continue
			}
			if !c.Check(v) {
				issues = append(issues, ValidationIssue{
					Code: rerrors.CodeUnresolvedConstraint,
					Message: fmt.Sprintf("resolved version %q for %q does not satisfy constraint %q declared by scope %q",
						dep.ResolvedVersion, name, constraint, scopeName),
					Path: fmt.Sprintf("dependencies.%s", name),
				})
			}
		}
	}

	return issues
}

// freshnessIssues compares lock against the live repository, reporting
// StaleLock when any scope's on-disk checksum has drifted (§4.A failure
// "StaleLock").
func freshnessIssues(ctx context.Context, lock LockFile, repoRoot string) ([]ValidationIssue, error) {
	current, err := Discover(repoRoot)
	if err != nil {
		return nil, err
	}

	var issues []ValidationIssue
	currentByName := make(map[string]ScopeDescriptor, len(current))
	for _, s := range current {
		currentByName[s.Name] = s
	}

	for name, locked := range lock.Scopes {
		live, ok := currentByName[name]
		if !ok {
			issues = append(issues, ValidationIssue{Code: rerrors.CodeStaleLock, Message: fmt.Sprintf("scope %q no longer exists in the repository", name), Path: "scopes." + name})
			continue
		}
		if live.Checksum != locked.Checksum {
			issues = append(issues, ValidationIssue{Code: rerrors.CodeStaleLock, Message: fmt.Sprintf("scope %q has changed since the lock was generated", name), Path: "scopes." + name})
		}
	}
	for _, s := range current {
		if _, ok := lock.Scopes[s.Name]; !ok {
			issues = append(issues, ValidationIssue{Code: rerrors.CodeStaleLock, Message: fmt.Sprintf("scope %q exists in the repository but not in the lock", s.Name), Path: "scopes"})
		}
	}
	return issues, nil
}
