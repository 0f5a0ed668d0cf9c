// Package verify implements the 4-digit submission gate. A challenge is
// issued every time the submit or login view is entered and shown directly
// to the user; the submission must echo it back exactly. This is a UX
// speed bump against accidental or scripted double-submits, not a
// security control: the code travels in the same response that asks
// for it.
package verify

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ceejayvjose/ict-repair-system/internal/errs"
	"github.com/google/uuid"
)

// Challenge is one issued code. ID is what the client hands back with
// its answer; Code is the 4 digits shown to the user.
type Challenge struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Gate issues and checks challenges. Safe for concurrent use.
type Gate struct {
	ttl  time.Duration
	now  func() time.Time
	intN func(n int) int

	mu     sync.Mutex
	active map[string]Challenge
}

func NewGate(ttl time.Duration) *Gate {
	return &Gate{
		ttl:    ttl,
		now:    time.Now,
		intN:   rand.IntN,
		active: make(map[string]Challenge),
	}
}

// Issue creates a fresh challenge: a uniformly random 4-digit code in
// [1000, 9999]. Each view entry gets its own challenge; earlier ones
// stay valid only until their TTL runs out or they are consumed.
func (g *Gate) Issue() Challenge {
	now := g.now()
	c := Challenge{
		ID:        uuid.NewString(),
		Code:      formatCode(1000 + g.intN(9000)),
		ExpiresAt: now.Add(g.ttl),
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for id, old := range g.active {
		if now.After(old.ExpiresAt) {
			delete(g.active, id)
		}
	}
	g.active[c.ID] = c
	return c
}

// Check validates input against the challenge id. Empty or mismatched
// input fails without touching the challenge, so the user can retry
// against the same displayed code. A correct answer consumes the
// challenge: it cannot be replayed on a later submission.
func (g *Gate) Check(id, input string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.active[id]
	if !ok {
		return errs.ErrCodeUnknown
	}
	if g.now().After(c.ExpiresAt) {
		delete(g.active, id)
		return errs.ErrCodeExpired
	}
	if input == "" || input != c.Code {
		return errs.ErrCodeMismatch
	}
	delete(g.active, id)
	return nil
}

// Pending reports how many unconsumed challenges are live, for tests.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.active)
}

func formatCode(n int) string {
	// n is always in [1000, 9999]; plain decimal formatting is 4 chars.
	b := [4]byte{}
	for i := 3; i >= 0; i-- {
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[:])
}
