package updater

import (
	"errors"
	"fmt"
)

// Failure categories. Every error returned by this package wraps one of them.
var (
	ErrNetwork    = errors.New("network error")
	ErrManifest   = errors.New("manifest error")
	ErrTrust      = errors.New("trust error")
	ErrFilesystem = errors.New("filesystem error")
	ErrProcess    = errors.New("process error")
	ErrLock       = errors.New("lock error")
	ErrVersion    = errors.New("version error")
)

// Specific failures, each wrapping its category.
var (
	ErrBadStatus            = fmt.Errorf("%w: unexpected http status", ErrNetwork)
	ErrNoPlatformBuild      = fmt.Errorf("%w: no build for this platform", ErrManifest)
	ErrUnsigned             = fmt.Errorf("%w: update is not signed, refusing to install", ErrTrust)
	ErrBadSignature         = fmt.Errorf("%w: signature verification failed, update may be tampered", ErrTrust)
	ErrChecksumMismatch     = fmt.Errorf("%w: checksum mismatch", ErrTrust)
	ErrBadPublicKey         = fmt.Errorf("%w: pinned public key is invalid", ErrTrust)
	ErrBinaryNotFound       = fmt.Errorf("%w: executable not found in archive", ErrFilesystem)
	ErrUnsafeArchive        = fmt.Errorf("%w: archive entry escapes destination", ErrFilesystem)
	ErrManualUpdateRequired = fmt.Errorf("%w: install location is not writable", ErrFilesystem)
	ErrUpdateInProgress     = fmt.Errorf("%w: another update is already in progress", ErrLock)
)

// Kind returns the category name of err, or "unknown".
func Kind(err error) string {
	for _, category := range []error{
		ErrNetwork, ErrManifest, ErrTrust, ErrFilesystem, ErrProcess, ErrLock, ErrVersion,
	} {
		if errors.Is(err, category) {
			return category.Error()
		}
	}

	return "unknown"
}
