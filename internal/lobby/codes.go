// internal/lobby/codes.go
package lobby

import "math/rand"

// codeAlphabet drops visually confusable characters (0/O, 1/I/L, 5/S, 8/B)
// so codes survive being read aloud or scribbled on a napkin.
const codeAlphabet = "ACDEFGHJKMNPQRTUVWXYZ234679"

// codeLength is the fixed lobby code length.
const codeLength = 6

// codeAttempts bounds generation retries before CreateLobby reports
// ErrCodeExhausted.
const codeAttempts = 5

func randomCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}
