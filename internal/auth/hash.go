package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argonParams are the Argon2id cost settings embedded in every stored hash.
type argonParams struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
	keyLen  uint32
}

// currentParams is used for new hashes. Stored hashes keep the parameters they
// were made with, so raising these does not lock anyone out.
var currentParams = argonParams{memory: 64 * 1024, time: 1, threads: 4, keyLen: 32}

const saltLen = 16

var errMalformedHash = errors.New("auth: malformed api key hash")

var b64 = base64.RawStdEncoding

// HashAPIKey hashes an API key with Argon2id and returns it in PHC string
// form: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>.
func HashAPIKey(apiKey string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	p := currentParams
	hash := argon2.IDKey([]byte(apiKey), salt, p.time, p.memory, p.threads, p.keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads, b64.EncodeToString(salt), b64.EncodeToString(hash)), nil
}

// DummyVerify spends the same Argon2id work as a real verification. Call it
// on failure paths that had no hash to check, so timing does not reveal
// whether a member name exists.
func DummyVerify() {
	p := currentParams
	argon2.IDKey([]byte("dummy"), make([]byte, saltLen), p.time, p.memory, p.threads, p.keyLen)
}

// VerifyAPIKey checks apiKey against a hash produced by HashAPIKey.
func VerifyAPIKey(apiKey, encoded string) (bool, error) {
	p, salt, want, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(apiKey), salt, p.time, p.memory, p.threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

// NeedsRehash reports whether encoded was made with parameters other than
// the current ones. Malformed hashes report true.
func NeedsRehash(encoded string) bool {
	p, _, _, err := decodeHash(encoded)
	return err != nil || p != currentParams
}

func decodeHash(encoded string) (argonParams, []byte, []byte, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, hash
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return argonParams{}, nil, nil, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("%w: version: %v", errMalformedHash, err)
	}
	if version != argon2.Version {
		return argonParams{}, nil, nil, fmt.Errorf("%w: unsupported version %d", errMalformedHash, version)
	}

	var p argonParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("%w: params: %v", errMalformedHash, err)
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return argonParams{}, nil, nil, fmt.Errorf("%w: zero cost parameter", errMalformedHash)
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("%w: salt: %v", errMalformedHash, err)
	}
	hash, err := b64.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return argonParams{}, nil, nil, fmt.Errorf("%w: hash", errMalformedHash)
	}
	p.keyLen = uint32(len(hash))
	return p, salt, hash, nil
}
