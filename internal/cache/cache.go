// Package cache implements the cache-aside layer over derived read views:
// the current-user identity view, org member lists, and org task lists.
// Reads go through Get/Set; every membership or task mutation deletes the
// affected keys after commit. The cache is a performance optimization, not a
// consistency boundary: callers log and ignore invalidation failures, and
// staleness is bounded by the entry TTL.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the expiry applied when callers pass a zero TTL.
const DefaultTTL = 5 * time.Minute

// Cache is the read-through cache contract. Get reports a miss via its
// boolean result rather than an error; a broken cache entry is treated as a
// miss so the caller falls back to the store.
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	DelPattern(ctx context.Context, pattern string) error
	Ping(ctx context.Context) error
}

// UserKey is the cache key for a user's enriched identity view
// (profile plus memberships).
func UserKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s", userID)
}

// MembersKey is the cache key for an organization's member list.
func MembersKey(orgID uuid.UUID) string {
	return fmt.Sprintf("members:%s", orgID)
}

// TasksKey is the cache key for an organization's task list.
func TasksKey(orgID uuid.UUID) string {
	return fmt.Sprintf("tasks:%s", orgID)
}
