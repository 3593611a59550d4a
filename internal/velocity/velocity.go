// Package velocity counts user activity in hourly buckets. The moderation
// engine reads these counters to derive behavioural velocity signals
// (listings and messages per hour) and ticks them from the auto-moderation
// gate.
package velocity

import (
	"context"
	"fmt"
	"time"
)

// Activity names.
const (
	ActivityListing = "listings"
	ActivityMessage = "messages"
)

// Store counts named activities per user within the current clock hour.
type Store interface {
	GetCount(ctx context.Context, activity string, userID int64) (int, error)
	Increment(ctx context.Context, activity string, userID int64) error
}

// hourBucket returns the storage key of the counter for the hour containing t.
func hourBucket(activity string, userID int64, t time.Time) string {
	return fmt.Sprintf("%s/%d/%s", activity, userID, t.UTC().Format("2006-01-02T15"))
}
