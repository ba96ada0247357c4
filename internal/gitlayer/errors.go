package gitlayer

import "github.com/fugue-ai/rhema/internal/rerrors"

func errNotFound(path string) error {
	return rerrors.New(rerrors.CodeNotFound, "path not found at ref").WithDetails("path", path)
}

func errCorrupted(path string, cause error) error {
	return rerrors.Wrap(rerrors.CodeCorrupted, "content failed integrity check", cause).
		WithDetails("path", path)
}

func errConflict(path string, detail string) error {
	return rerrors.New(rerrors.CodeConflict, "conflicting change").
		WithDetails("path", path).WithDetails("detail", detail)
}

func errIO(op string, cause error) error {
	return rerrors.Wrap(rerrors.CodeIOError, "git operation failed", cause).WithDetails("op", op)
}

func errHookRejected(kind string, cause error) error {
	return rerrors.Wrap(rerrors.CodeHookRejected, "hook installation rejected", cause).
		WithDetails("kind", kind)
}
