package audit

import "github.com/google/uuid"

// Token identifies one audit stream invocation. Events are only merged
// while their token is the aggregator's current one. The zero Token is
// never current.
type Token string

func newToken() Token {
	return Token(uuid.NewString())
}
