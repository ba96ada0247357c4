package scopegraph

import (
	"fmt"

	"github.com/fugue-ai/rhema/internal/rerrors"
)

// migrationStep upgrades a lock file one schema version forward. Steps are
// kept small and composable so migrate() can walk an arbitrary version
// path rather than special-casing every (from, to) pair.
type migrationStep struct {
	from, to string
	apply    func(LockFile) LockFile
}

// migrationSteps is the ordered upgrade path. Only LockSchemaVersion
// exists today; this registry is where a future schema bump adds its
// step, keeping old lock files migratable instead of rejected outright.
var migrationSteps = []migrationStep{
	// Reserved: the first real migration step lands here once a second
	// schema version is introduced.
}

// Migrate implements migrate(lock, to_version) -> LockFile (§4.A): walks
// migrationSteps from lock.Metadata.Version to toVersion, re-stamping the
// checksum at the end. Migrating a lock already at toVersion is a no-op.
func Migrate(lock LockFile, toVersion string) (LockFile, error) {
	if lock.Metadata.Version == toVersion {
		return lock, nil
	}

	current := lock
	for current.Metadata.Version != toVersion {
		step, ok := stepFrom(current.Metadata.Version)
		if !ok {
			return LockFile{}, rerrors.New(rerrors.CodeSchemaViolation, fmt.Sprintf("no migration path from %q to %q", current.Metadata.Version, toVersion)).
				WithDetails("from", current.Metadata.Version).WithDetails("to", toVersion)
		}
		current = step.apply(current)
		current.Metadata.Version = step.to
	}

	marshaled, err := Marshal(current)
	if err != nil {
		return LockFile{}, err
	}
	return Unmarshal(marshaled)
}

func stepFrom(version string) (migrationStep, bool) {
	for _, s := range migrationSteps {
		if s.from == version {
			return s, true
		}
	}
	return migrationStep{}, false
}
