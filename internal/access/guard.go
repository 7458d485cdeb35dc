// Package access gates chat events on membership of a configured group.
package access

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"tradelink/internal/model"
)

// Member statuses that may use the bot. Everything else, including "left",
// "kicked" and an unknown user, is denied.
var allowedStatuses = []string{"administrator", "member", "owner", "restricted"}

// notMember is cached for users the source does not know.
const notMember = "not_member"

// DefaultTTL is how long a membership answer is cached.
const DefaultTTL = 5 * time.Minute

// MembershipSource reports a user's status in a group.
// found is false when the user was never in the group.
type MembershipSource interface {
	GetMembership(ctx context.Context, groupID, userID int64) (status string, found bool, err error)
}

// Cache stores membership answers between checks.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// Config holds guard settings. Cache is optional.
type Config struct {
	Source  MembershipSource
	GroupID int64
	Cache   Cache
	TTL     time.Duration
	Logger  *slog.Logger
}

// Guard decides whether a user may talk to the bot.
type Guard struct {
	source  MembershipSource
	groupID int64
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
}

// NewGuard creates a guard.
func NewGuard(cfg Config) (*Guard, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("membership source is required")
	}
	if cfg.GroupID == 0 {
		return nil, fmt.Errorf("group id is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Guard{
		source:  cfg.Source,
		groupID: cfg.GroupID,
		cache:   cfg.Cache,
		ttl:     ttl,
		logger:  logger,
	}, nil
}

// Check returns nil when userID may proceed and a PERMISSION_DENIED error
// otherwise. A failing membership lookup denies.
func (g *Guard) Check(ctx context.Context, userID int64) error {
	status, err := g.status(ctx, userID)
	if err != nil {
		g.logger.Warn("membership lookup failed",
			slog.Int64("user_id", userID),
			slog.Int64("group_id", g.groupID),
			slog.String("error", err.Error()),
		)
		return model.NewPermissionDeniedError(userID)
	}
	if !Allowed(status) {
		g.logger.Info("access denied", slog.Int64("user_id", userID), slog.String("status", status))
		return model.NewPermissionDeniedError(userID)
	}
	return nil
}

// Allowed reports whether status permits using the bot.
func Allowed(status string) bool {
	return slices.Contains(allowedStatuses, status)
}

func (g *Guard) status(ctx context.Context, userID int64) (string, error) {
	key := cacheKey(g.groupID, userID)
	if g.cache != nil {
		status, ok, err := g.cache.Get(ctx, key)
		if err != nil {
			g.logger.Warn("membership cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		} else if ok {
			return status, nil
		}
	}

	status, found, err := g.source.GetMembership(ctx, g.groupID, userID)
	if err != nil {
		return "", err
	}
	if !found {
		status = notMember
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, key, status, g.ttl); err != nil {
			g.logger.Warn("membership cache write failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return status, nil
}

func cacheKey(groupID, userID int64) string {
	return fmt.Sprintf("membership:%d:%d", groupID, userID)
}
