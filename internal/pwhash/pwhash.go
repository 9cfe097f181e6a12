// Package pwhash derives and verifies the pool authenticator hash
// referenced by internal/core's Pool doc comment ("authenticator hash
// must already be a password hash... plaintext is never accepted
// here") and named by SPEC_FULL.md's domain stack table ("Pool
// authenticator hashing" via golang.org/x/crypto/argon2). Grounded on
// the teacher's pkg/crypto.DeriveKey (same Argon2id parameters: 3
// passes, 64 MB, 2 threads, OWASP-recommended), adapted from deriving
// a symmetric encryption key to producing a self-describing,
// independently-verifiable hash string, since a pool authenticator is
// checked against, never decrypted with.
package pwhash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/cardmind/core/internal/core"
	"golang.org/x/crypto/argon2"
)

const (
	saltSize   = 16
	keySize    = 32
	argonTime  = 3
	argonMemKB = 64 * 1024
	argonLanes = 2

	// MinPasswordLen enforces spec §7's "plaintext password too short"
	// InvalidArgument case.
	MinPasswordLen = 8
)

// Hash derives a pool authenticator hash from a plaintext password,
// encoded as "$argon2id$t=<time>,m=<memKB>,p=<lanes>$<salt>$<hash>" —
// self-describing so a future parameter change doesn't break
// verification of hashes already at rest.
func Hash(password string) (string, error) {
	if len(password) < MinPasswordLen {
		return "", core.NewError(core.ErrInvalidArgument, "plaintext password too short")
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", core.WrapError(core.ErrInternal, "generating password salt", err)
	}

	sum := argon2.IDKey([]byte(password), salt, argonTime, argonMemKB, argonLanes, keySize)
	encoded := fmt.Sprintf("$argon2id$t=%d,m=%d,p=%d$%s$%s",
		argonTime, argonMemKB, argonLanes,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum))
	return encoded, nil
}

// Verify reports whether password matches the authenticator hash
// produced by Hash, in constant time.
func Verify(hash, password string) (bool, error) {
	var time, memKB, lanes uint32
	var saltB64, sumB64 string
	n, err := fmt.Sscanf(hash, "$argon2id$t=%d,m=%d,p=%d$%s", &time, &memKB, &lanes, &saltB64)
	if err != nil || n != 4 {
		return false, core.NewError(core.ErrInvalidArgument, "malformed authenticator hash")
	}

	// Sscanf's %s for saltB64 greedily consumed the trailing "$<hash>"
	// too, since %s has no delimiter awareness — split it back out.
	parts := strings.SplitN(saltB64, "$", 2)
	if len(parts) != 2 {
		return false, core.NewError(core.ErrInvalidArgument, "malformed authenticator hash")
	}
	saltB64, sumB64 = parts[0], parts[1]

	salt, err := base64.RawStdEncoding.DecodeString(saltB64)
	if err != nil {
		return false, core.NewError(core.ErrInvalidArgument, "malformed authenticator salt")
	}
	want, err := base64.RawStdEncoding.DecodeString(sumB64)
	if err != nil {
		return false, core.NewError(core.ErrInvalidArgument, "malformed authenticator sum")
	}

	got := argon2.IDKey([]byte(password), salt, time, memKB, uint8(lanes), uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
