package ids

import (
	"crypto/rand"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// TokenAlphabet is the symbol set used for public share tokens.
	TokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	// TokenLength is the default number of symbols in a share token.
	TokenLength = 32

	// largest multiple of len(TokenAlphabet) that fits in a byte; bytes above it are rejected
	// so every symbol is equally likely.
	tokenByteLimit = 256 - 256%len(TokenAlphabet)
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)

	tokenSource io.Reader = rand.Reader
)

// ErrTokenLength is returned when a share token of non-positive length is requested.
var ErrTokenLength = errors.New("ids: token length must be positive")

// New returns a lexicographically sortable identifier suitable for storage keys.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewShareToken returns a TokenLength-symbol token drawn from TokenAlphabet using a
// cryptographically secure source.
func NewShareToken() (string, error) {
	return newToken(tokenSource, TokenLength)
}

func newToken(src io.Reader, length int) (string, error) {
	if length <= 0 {
		return "", ErrTokenLength
	}
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= tokenByteLimit {
				continue
			}
			out = append(out, TokenAlphabet[int(b)%len(TokenAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// IsShareToken reports whether s has the shape of a share token.
func IsShareToken(s string) bool {
	if len(s) < TokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
