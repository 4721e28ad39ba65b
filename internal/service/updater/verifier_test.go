package updater

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerify(t *testing.T) {
	t.Parallel()

	keys := newKeyPair(t)
	other := newKeyPair(t)
	data := []byte("dashtext release archive")
	digest := sha256Hex(data)

	verifier, err := NewVerifier(keys.public)
	require.NoError(t, err)

	tests := []struct {
		name      string
		data      []byte
		signature string
		digest    string
		want      error
	}{
		{"valid", data, keys.sign(data), digest, nil},
		{"uppercase digest", data, keys.sign(data), strings.ToUpper(digest), nil},
		{"base64 signature", data, base64.StdEncoding.EncodeToString([]byte(keys.sign(data))), digest, nil},
		{"unsigned", data, "", digest, ErrUnsigned},
		{"whitespace signature", data, "  \n", digest, ErrUnsigned},
		{"wrong key", data, other.sign(data), digest, ErrBadSignature},
		{"tampered bytes", []byte("dashtext release archivf"), keys.sign(data), digest, ErrBadSignature},
		{"garbage signature", data, "not a signature", digest, ErrBadSignature},
		{"signed but digest differs", data, keys.sign(data), sha256Hex([]byte("other")), ErrChecksumMismatch},
		{"signed but no digest", data, keys.sign(data), "", ErrChecksumMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := verifier.VerifyBytes(tt.data, tt.signature, tt.digest)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, ErrTrust)
		})
	}
}

func TestVerifyFile(t *testing.T) {
	t.Parallel()

	keys := newKeyPair(t)
	data := []byte("archive bytes")
	path := filepath.Join(t.TempDir(), "update.tar.gz")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	verifier, err := NewVerifier(keys.public)
	require.NoError(t, err)

	require.NoError(t, verifier.Verify(path, keys.sign(data), sha256Hex(data)))

	// An unsigned artifact is rejected before it is read.
	require.ErrorIs(t, verifier.Verify(filepath.Join(t.TempDir(), "missing"), "", "ab"), ErrUnsigned)
	require.ErrorIs(t, verifier.Verify(filepath.Join(t.TempDir(), "missing"), keys.sign(data), "ab"), ErrFilesystem)
}

func TestNewVerifierRejectsBadKey(t *testing.T) {
	t.Parallel()

	for _, key := range []string{"", "not-a-key", "RWQ="} {
		_, err := NewVerifier(key)
		require.ErrorIs(t, err, ErrBadPublicKey, key)
		require.ErrorIs(t, err, ErrTrust, key)
	}
}
