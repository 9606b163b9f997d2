package verification

import "github.com/example/auracheck/internal/cryptography"

// VerifyPin evaluates the optional PIN factor. It only passes when a PIN
// was submitted and a hash is on file; the comparison is a salted-hash
// check, never plaintext equality.
func VerifyPin(pin, storedHash string) PinDecision {
	if pin == "" || storedHash == "" {
		return PinDecision{Verified: false}
	}
	return PinDecision{Verified: cryptography.VerifyHash(storedHash, pin)}
}
