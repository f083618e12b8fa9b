package order

import (
	"fmt"

	"github.com/google/uuid"
)

// Token correlates a submission with the gateway-assigned order id that
// arrives later on the feed.
type Token string

// NewToken generates a fresh correlation token. The role prefix keeps logs
// and journal rows readable.
func NewToken(role Role) Token {
	return Token(fmt.Sprintf("%s-%s", role, uuid.NewString()))
}

func (t Token) String() string { return string(t) }

func (t Token) Empty() bool { return t == "" }
