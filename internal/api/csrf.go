package api

import (
	"errors"
	"time"

	"github.com/gorilla/securecookie"
)

// CSRFHeader carries the opinion deletion token.
const CSRFHeader = "X-CSRF-Token"

const csrfName = "opinion-delete"

var ErrInvalidCSRF = errors.New("invalid csrf token")

// CSRF issues signed, expiring tokens bound to one opinion id.
type CSRF struct {
	sc *securecookie.SecureCookie
}

// NewCSRF creates a token issuer. An empty hashKey gets a random one, so tokens
// do not survive a restart.
func NewCSRF(hashKey []byte, maxAge time.Duration) *CSRF {
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
	}
	sc := securecookie.New(hashKey, nil)
	sc.MaxAge(int(maxAge.Seconds()))
	return &CSRF{sc: sc}
}

// Token returns a token allowing deletion of opinionID.
func (c *CSRF) Token(opinionID int64) (string, error) {
	return c.sc.Encode(csrfName, opinionID)
}

// Verify checks that token is valid, unexpired and issued for opinionID.
func (c *CSRF) Verify(token string, opinionID int64) error {
	if token == "" {
		return ErrInvalidCSRF
	}
	var id int64
	if err := c.sc.Decode(csrfName, token, &id); err != nil {
		return ErrInvalidCSRF
	}
	if id != opinionID {
		return ErrInvalidCSRF
	}
	return nil
}
