// Package cryptography wraps argon2 salted hashing for PINs and passwords.
package cryptography

import "github.com/matthewhartstonge/argon2"

// HashString hashes a secret with argon2id and returns the encoded form.
func HashString(data string) (string, error) {
	config := argon2.DefaultConfig()
	raw, err := config.Hash([]byte(data), nil)
	if err != nil {
		return "", err
	}
	return string(raw.Encode()), nil
}

// VerifyHash checks a candidate secret against a stored encoded hash. Any
// decode or verification failure counts as a mismatch.
func VerifyHash(hash, data string) bool {
	raw, err := argon2.Decode([]byte(hash))
	if err != nil {
		return false
	}
	ok, err := raw.Verify([]byte(data))
	if err != nil {
		return false
	}
	return ok
}
