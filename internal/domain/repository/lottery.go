package repository

import (
	"context"
	"time"

	"github.com/polkiloo/shiftclose/internal/domain/model"
)

// LotteryRepository stores lottery business days and closing attempts.
// Expiry is evaluated against the supplied now on every call.
type LotteryRepository interface {
	OpenDay(ctx context.Context, storeID string, today time.Time) (*model.LotteryDay, error)
	SavePrepared(ctx context.Context, attempt *model.LotteryClosingAttempt) (*model.LotteryClosingAttempt, error)
	LatestAttempt(ctx context.Context, storeID string, dayID int64, now time.Time) (*model.LotteryClosingAttempt, error)
	Commit(ctx context.Context, storeID string, dayID int64, now time.Time) (*model.LotteryCommitResult, error)
	Cancel(ctx context.Context, storeID string, dayID int64, now time.Time) (*model.LotteryClosingAttempt, error)
}

// PackInventory reads pack state owned by the inventory collaborator.
type PackInventory interface {
	Packs(ctx context.Context, storeID string, packIDs []string) (map[string]model.Pack, error)
}
