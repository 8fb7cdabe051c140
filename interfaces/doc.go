// Package interfaces defines the Publisher contract and the error kinds shared
// by every publishing backend.
//
// # Publisher
//
// Publisher is implemented once per storage technology (filesystem, git
// working tree, S3, IPFS MFS, Vault) and by MirrorPublisher, which composes
// two publishers. Callers address objects by forward-slash relative paths and
// bracket a burst of writes with Commit or Rollback.
//
// # Error Kinds
//
//   - ErrNotFound: no object or alias resolves for a path
//   - ErrNotDirectory: a path component exists but is not a directory
//   - ErrProcessFailure: an external tool failed (see ProcessError)
//   - ErrPushFailed: a checkpoint was created but not propagated
//   - ErrMirrorDiverged: the mirror secondary rejected a write the primary accepted
//   - ErrInvalidPath: the path is empty, absolute or escapes the root
package interfaces
