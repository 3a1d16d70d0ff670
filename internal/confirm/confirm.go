// Package confirm holds pending fraud-confirmation sessions and the
// vocabulary of user replies that resolve them.
//
// A session is opened when a transaction scores HIGH or CRITICAL and the
// user is asked to confirm it. At most one session exists per user: opening
// a new one silently supersedes the old. Sessions die on reply or timeout;
// expiry is checked lazily on the next interaction and swept periodically by
// the Timer.
package confirm

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kbaffoe/momoguard/internal/scoring"
	"github.com/kbaffoe/momoguard/internal/sms"
)

var (
	// ErrNoSession is returned when a user has no pending confirmation.
	ErrNoSession = errors.New("no pending confirmation")
)

// DefaultTTL is how long a prompt waits for a reply before expiring.
const DefaultTTL = 24 * time.Hour

// Reply is the normalized form of a free-text answer to a prompt. The state
// machine consumes these tags so it never touches raw strings.
type Reply int

const (
	ReplyUnrecognized Reply = iota
	ReplyAffirm
	ReplyDeny
	ReplyBlock
)

var replyVocab = map[string]Reply{
	"yes": ReplyAffirm, "y": ReplyAffirm, "ok": ReplyAffirm,
	"okay": ReplyAffirm, "legit": ReplyAffirm,
	"no": ReplyDeny, "n": ReplyDeny, "fraud": ReplyDeny,
	"block": ReplyBlock,
}

// ParseReply normalizes free text into a Reply tag. Matching is
// case-insensitive on the whole trimmed message.
func ParseReply(text string) Reply {
	r, ok := replyVocab[strings.ToLower(strings.TrimSpace(text))]
	if !ok {
		return ReplyUnrecognized
	}
	return r
}

// Resolution is the terminal state of a confirmation session.
type Resolution string

const (
	ResolutionLegit   Resolution = "legit"
	ResolutionFraud   Resolution = "fraud"
	ResolutionBlock   Resolution = "block"
	ResolutionExpired Resolution = "expired"
)

// PendingConfirmation snapshots the flagged transaction and its assessment
// while the user's answer is outstanding.
type PendingConfirmation struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"userId"`
	Tx         sms.Transaction        `json:"tx"`
	Assessment scoring.RiskAssessment `json:"assessment"`
	CreatedAt  time.Time              `json:"createdAt"`
	ExpiresAt  time.Time              `json:"expiresAt"`
}

// Expired reports whether the session's reply window has passed.
func (p *PendingConfirmation) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Store is the session registry. Put replaces any existing session for the
// user. Claim removes the session only if the given id is still current and
// reports whether this caller won: racing replies resolve to exactly one
// winner, the rest become no-ops.
type Store interface {
	Put(ctx context.Context, pc *PendingConfirmation) error
	Get(ctx context.Context, userID string) (*PendingConfirmation, error)
	Claim(ctx context.Context, userID, id string) (bool, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*PendingConfirmation, error)
	Count(ctx context.Context) (int, error)
}
