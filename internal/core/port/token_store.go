package port

import (
	"context"
	"time"

	"github.com/atymri/Promptino/internal/core/domain"
)

// OneTimeTokenStore keeps hashed single-use tokens. Issuing a token for the same purpose and
// account replaces the previous one; Consume succeeds at most once per issued token.
type OneTimeTokenStore interface {
	Issue(ctx context.Context, purpose domain.TokenPurpose, accountID, tokenHash string, ttl time.Duration) error
	Consume(ctx context.Context, purpose domain.TokenPurpose, accountID, tokenHash string) (bool, error)
}
