// Package detector scans a document root and classifies every supported file
// as new, modified, unchanged or removed relative to the last recorded index
// state.
//
// Every file is hashed and the content fingerprint (SHA-256 of the raw bytes)
// alone decides whether it changed. The modification time and size are
// recorded but never decide: a file whose mtime changed but whose bytes did
// not is reported as unchanged, and a same-size rewrite with a restored mtime
// is reported as modified.
//
// Unreadable files never cause removals. If a file that was previously indexed
// cannot be read, or sits below a directory that cannot be read, its previous
// entry is carried forward and a warning is recorded so the next pass can
// retry it.
package detector
