package links

import "fmt"

// ConflictError reports a link path that already holds something pointing
// elsewhere while force_recreate is not set. Per-entry; the batch continues.
type ConflictError struct {
	// Path is the link path in conflict.
	Path string

	// Existing describes what occupies the path: the actual symlink target,
	// or "file"/"directory" for non-symlinks.
	Existing string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("symlink %s already exists (points to %s); set links.force_recreate to replace it", e.Path, e.Existing)
}

// MissingTargetError reports an operation against a target directory that
// does not exist. Per-entry; the batch continues.
type MissingTargetError struct {
	Target string
}

// Error implements the error interface.
func (e *MissingTargetError) Error() string {
	return fmt.Sprintf("target does not exist: %s", e.Target)
}

// PermissionError reports a filesystem operation denied by the OS.
// Per-entry; the batch continues.
type PermissionError struct {
	// Op names the attempted operation (mkdir, symlink, remove).
	Op string

	// Path is the path the operation was attempted on.
	Path string

	// Err is the underlying os error.
	Err error
}

// Error implements the error interface.
func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s %s: permission denied: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying os error.
func (e *PermissionError) Unwrap() error {
	return e.Err
}
