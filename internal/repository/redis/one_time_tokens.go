package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/atymri/Promptino/internal/core/domain"
	"github.com/atymri/Promptino/internal/core/port"
)

const defaultOneTimeTokenPrefix = "ott"

// consumeTokenLua deletes KEYS[1] only when it holds ARGV[1] and returns 1, otherwise 0.
var consumeTokenLua = red.NewScript(`
local stored = redis.call('GET', KEYS[1])
if not stored then
  return 0
end
if stored ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
return 1
`)

// OneTimeTokenRepository keeps hashed confirmation and reset tokens with an expiry.
type OneTimeTokenRepository struct {
	client *red.Client
	prefix string
}

// NewOneTimeTokenRepository constructs the store with the provided Redis client and key prefix.
func NewOneTimeTokenRepository(client *red.Client, keyPrefix string) *OneTimeTokenRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultOneTimeTokenPrefix
	}
	return &OneTimeTokenRepository{client: client, prefix: prefix}
}

// Issue stores tokenHash for the purpose and account, replacing any earlier token.
func (r *OneTimeTokenRepository) Issue(ctx context.Context, purpose domain.TokenPurpose, accountID, tokenHash string, ttl time.Duration) error {
	switch {
	case purpose == "":
		return errors.New("purpose is required")
	case strings.TrimSpace(accountID) == "":
		return errors.New("account id is required")
	case tokenHash == "":
		return errors.New("token hash is required")
	case ttl <= 0:
		return errors.New("ttl must be positive")
	}

	if err := r.client.Set(ctx, r.key(purpose, accountID), tokenHash, ttl).Err(); err != nil {
		return fmt.Errorf("redis set one-time token: %w", err)
	}
	return nil
}

// Consume atomically removes the token if tokenHash matches and reports whether it did.
func (r *OneTimeTokenRepository) Consume(ctx context.Context, purpose domain.TokenPurpose, accountID, tokenHash string) (bool, error) {
	if purpose == "" || strings.TrimSpace(accountID) == "" || tokenHash == "" {
		return false, nil
	}

	consumed, err := consumeTokenLua.Run(ctx, r.client, []string{r.key(purpose, accountID)}, tokenHash).Int()
	if err != nil {
		return false, fmt.Errorf("redis consume one-time token: %w", err)
	}
	return consumed == 1, nil
}

func (r *OneTimeTokenRepository) key(purpose domain.TokenPurpose, accountID string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, purpose, strings.TrimSpace(accountID))
}

var _ port.OneTimeTokenStore = (*OneTimeTokenRepository)(nil)
