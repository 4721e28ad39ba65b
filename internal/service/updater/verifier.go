package updater

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"aead.dev/minisign"
)

const untrustedCommentPrefix = "untrusted comment:"

// Verifier checks artifacts against the pinned minisign public key.
type Verifier struct {
	publicKey minisign.PublicKey
}

// NewVerifier parses the pinned public key. A malformed key fails closed.
func NewVerifier(publicKey string) (*Verifier, error) {
	var key minisign.PublicKey
	if err := key.UnmarshalText([]byte(strings.TrimSpace(publicKey))); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadPublicKey, err)
	}

	return &Verifier{publicKey: key}, nil
}

// Verify checks the artifact at path: the signature first, then the digest.
func (v *Verifier) Verify(path, signature, expectedSHA256 string) error {
	if strings.TrimSpace(signature) == "" {
		return ErrUnsigned
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("%w: read artifact: %w", ErrFilesystem, err)
	}

	return v.VerifyBytes(data, signature, expectedSHA256)
}

// VerifyBytes is Verify for an artifact already in memory.
func (v *Verifier) VerifyBytes(data []byte, signature, expectedSHA256 string) error {
	if strings.TrimSpace(signature) == "" {
		return ErrUnsigned
	}

	if !minisign.Verify(v.publicKey, data, decodeSignature(signature)) {
		return ErrBadSignature
	}

	want := strings.ToLower(strings.TrimSpace(expectedSHA256))
	if want == "" {
		return fmt.Errorf("%w: manifest declares no digest", ErrChecksumMismatch)
	}

	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != want {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, want, got)
	}

	return nil
}

// decodeSignature accepts minisign signature text either verbatim or base64
// encoded, the form Tauri-style .sig files use.
func decodeSignature(signature string) []byte {
	trimmed := strings.TrimSpace(signature)
	if strings.HasPrefix(trimmed, untrustedCommentPrefix) {
		return []byte(trimmed + "\n")
	}

	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err == nil {
		decoded = bytes.TrimSpace(decoded)
		if bytes.HasPrefix(decoded, []byte(untrustedCommentPrefix)) {
			return append(decoded, '\n')
		}
	}

	return []byte(trimmed)
}
