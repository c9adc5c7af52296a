package cache

import (
	"context"
	"time"
)

type SentCache interface {
	StoreSent(ctx context.Context, campaignID int64, contactPhone, remoteMessageID string, sentAt time.Time) error
}
