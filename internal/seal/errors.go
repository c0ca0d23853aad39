package seal

import "errors"

var (
	// ErrInvalidIdentity reports a malformed authorization-list id supplied
	// to encryption. Caller error; never retried.
	ErrInvalidIdentity = errors.New("invalid authorization list identity")

	// ErrNoAccess reports that the key-server quorum declined to release a
	// threshold of key shares: the caller is not authorized at decrypt time,
	// or too few servers responded. This is an authorization decision, not a
	// transient fault, and is never retried automatically.
	ErrNoAccess = errors.New("no access to decryption keys")

	// ErrDecryptionFailed covers every other decrypt-path failure. The
	// underlying cause is logged, not surfaced.
	ErrDecryptionFailed = errors.New("unable to decrypt content")
)
