package credits

import (
	"time"

	"github.com/ganot/promptsync/internal/localcache"
)

// Cache keys are part of the persisted format and must not change.
const (
	balanceKeyPrefix = "credits_balance_"
	refreshKeyPrefix = "credits_last_refresh_"
)

// BalanceKey returns the cache key holding a user's last observed balance.
func BalanceKey(userID string) string {
	return balanceKeyPrefix + userID
}

// RefreshMarkerKey returns the cache key holding a user's last refresh time.
func RefreshMarkerKey(userID string) string {
	return refreshKeyPrefix + userID
}

type cachedBalance struct {
	Value           int64     `json:"value"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
	CachedAt        time.Time `json:"cached_at"`
}

// refreshMarker mirrors the server-held refresh time for display. It is never
// consulted to decide eligibility.
type refreshMarker struct {
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
	NextRefreshAt   time.Time `json:"next_refresh_at"`
}

func (c *Client) readCachedBalance(userID string) (cachedBalance, bool) {
	cached, ok := localcache.Load[cachedBalance](c.cache, BalanceKey(userID), "value", "cached_at")
	if !ok || cached.Value < 0 {
		return cachedBalance{}, false
	}
	return cached, true
}

func (c *Client) writeCachedBalance(userID string, value int64, lastRefreshedAt time.Time) {
	if lastRefreshedAt.IsZero() {
		if prev, ok := c.readCachedBalance(userID); ok {
			lastRefreshedAt = prev.LastRefreshedAt
		}
	}
	entry := cachedBalance{
		Value:           value,
		LastRefreshedAt: lastRefreshedAt,
		CachedAt:        c.clock.Now(),
	}
	if err := localcache.Save(c.cache, BalanceKey(userID), entry); err != nil {
		c.logger.Warn("failed to cache balance", "user_id", userID, "error", err)
	}
}

func (c *Client) writeRefreshMarker(userID string, last, next time.Time) {
	if last.IsZero() {
		return
	}
	marker := refreshMarker{LastRefreshedAt: last, NextRefreshAt: next}
	if err := localcache.Save(c.cache, RefreshMarkerKey(userID), marker); err != nil {
		c.logger.Warn("failed to cache refresh marker", "user_id", userID, "error", err)
	}
}

// LastRefresh returns the locally mirrored refresh marker for userID.
func (c *Client) LastRefresh(userID string) (last, next time.Time, ok bool) {
	marker, ok := localcache.Load[refreshMarker](c.cache, RefreshMarkerKey(userID), "last_refreshed_at")
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return marker.LastRefreshedAt, marker.NextRefreshAt, true
}
