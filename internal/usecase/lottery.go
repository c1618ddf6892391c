package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/polkiloo/shiftclose/internal/config"
	domainErrors "github.com/polkiloo/shiftclose/internal/domain/errors"
	"github.com/polkiloo/shiftclose/internal/domain/model"
	"github.com/polkiloo/shiftclose/internal/domain/repository"
)

// LotteryOptions holds the lottery closing policy.
type LotteryOptions struct {
	PrepareTTL time.Duration
	// Deferred forbids an independent lottery close; only a commit carrying
	// DeferredOverride from the day-close finalize is accepted.
	Deferred bool
}

func newLotteryOptions(cfg *config.Config) LotteryOptions {
	return LotteryOptions{PrepareTTL: cfg.LotteryPrepareTTL, Deferred: cfg.DeferredLotteryClose}
}

// LotteryUseCase implements the prepare/commit/cancel protocol of the lottery sub-ledger.
type LotteryUseCase struct {
	lottery   repository.LotteryRepository
	inventory repository.PackInventory
	validate  *validator.Validate
	opts      LotteryOptions
	now       func() time.Time
	logger    *slog.Logger
}

// NewLotteryUseCase constructs LotteryUseCase.
func NewLotteryUseCase(lottery repository.LotteryRepository, inventory repository.PackInventory, opts LotteryOptions, logger *slog.Logger) *LotteryUseCase {
	return &LotteryUseCase{
		lottery:   lottery,
		inventory: inventory,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		opts:      opts,
		now:       time.Now,
		logger:    logger,
	}
}

// Prepare validates and prices the lines, then freezes them as a PREPARED
// attempt on the store's open lottery day. Nothing is stored when a line is invalid.
func (u *LotteryUseCase) Prepare(ctx context.Context, actor model.Actor, lines []model.PrepareLine) (*model.LotteryClosingAttempt, error) {
	if err := authorize(actor, model.RoleClerk); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, domainErrors.NewValidationError("at least one line is required")
	}

	packIDs := make([]string, 0, len(lines))
	for _, line := range lines {
		packIDs = append(packIDs, line.PackID)
	}
	packs, err := u.inventory.Packs(ctx, actor.StoreID, packIDs)
	if err != nil {
		return nil, fmt.Errorf("load packs: %w", err)
	}

	priced, problems := u.priceLines(lines, packs)
	if len(problems) > 0 {
		return nil, domainErrors.NewValidationError(problems...)
	}

	attempt := &model.LotteryClosingAttempt{
		StoreID:      actor.StoreID,
		Lines:        priced,
		LotteryTotal: decimal.Zero,
		PreparedBy:   actor.UserID,
	}
	for _, line := range priced {
		attempt.TicketsSold += line.TicketsSold
		attempt.LotteryTotal = attempt.LotteryTotal.Add(line.SalesAmount)
	}

	now := u.now()
	day, err := u.lottery.OpenDay(ctx, actor.StoreID, businessDate(now))
	if err != nil {
		return nil, err
	}
	attempt.DayID = day.ID
	attempt.ExpiresAt = now.Add(u.opts.PrepareTTL)

	saved, err := u.lottery.SavePrepared(ctx, attempt)
	if err != nil {
		return nil, err
	}
	u.logger.Info("lottery closing prepared",
		slog.Int64("day_id", saved.DayID),
		slog.Int("lines", len(saved.Lines)),
		slog.String("lottery_total", saved.LotteryTotal.StringFixed(2)),
		slog.Time("expires_at", saved.ExpiresAt),
	)
	return saved, nil
}

func (u *LotteryUseCase) priceLines(lines []model.PrepareLine, packs map[string]model.Pack) ([]model.SettlementLine, []string) {
	var (
		problems []string
		priced   = make([]model.SettlementLine, 0, len(lines))
		seen     = make(map[string]struct{}, len(lines))
	)
	for i, line := range lines {
		n := i + 1
		if err := u.validate.Struct(line); err != nil {
			var fieldErrs validator.ValidationErrors
			if errors.As(err, &fieldErrs) {
				for _, fe := range fieldErrs {
					problems = append(problems, fmt.Sprintf("line %d: %s failed %s", n, fe.Field(), fe.Tag()))
				}
				continue
			}
			problems = append(problems, fmt.Sprintf("line %d: %v", n, err))
			continue
		}
		if _, dup := seen[line.PackID]; dup {
			problems = append(problems, fmt.Sprintf("line %d: pack %s listed twice", n, line.PackID))
			continue
		}
		seen[line.PackID] = struct{}{}

		pack, ok := packs[line.PackID]
		if !ok {
			problems = append(problems, fmt.Sprintf("line %d: unknown pack %s", n, line.PackID))
			continue
		}
		if pack.Status != model.PackStatusActivated {
			problems = append(problems, fmt.Sprintf("line %d: pack %s is %s, not activated", n, pack.PackID, pack.Status))
			continue
		}

		start, _ := strconv.Atoi(line.StartingSerial)
		end, _ := strconv.Atoi(line.EndingSerial)
		outcome := line.Outcome
		if outcome == "" {
			outcome = model.PackOutcomeActive
		}
		if start < pack.CurrentSerial {
			problems = append(problems, fmt.Sprintf("line %d: starting serial %d is behind pack position %d", n, start, pack.CurrentSerial))
		}
		if end > pack.TicketCount {
			problems = append(problems, fmt.Sprintf("line %d: ending serial %d exceeds pack size %d", n, end, pack.TicketCount))
		}
		if outcome == model.PackOutcomeDepleted && end != pack.TicketCount {
			problems = append(problems, fmt.Sprintf("line %d: depleted pack must end at %d", n, pack.TicketCount))
		}

		price := pack.TicketPrice
		if line.UnitPrice != nil {
			price = *line.UnitPrice
		}
		if !price.IsPositive() {
			problems = append(problems, fmt.Sprintf("line %d: unit price must be positive", n))
		}

		sold := end - start
		if sold < 0 {
			u.logger.Warn("negative ticket delta clamped to zero",
				slog.String("pack_id", line.PackID),
				slog.Int("starting_serial", start),
				slog.Int("ending_serial", end),
			)
			sold = 0
		}

		priced = append(priced, model.SettlementLine{
			PackID:         line.PackID,
			StartingSerial: line.StartingSerial,
			EndingSerial:   line.EndingSerial,
			TicketsSold:    int64(sold),
			UnitPrice:      price,
			SalesAmount:    price.Mul(decimal.NewFromInt(int64(sold))),
			Outcome:        outcome,
		})
	}
	return priced, problems
}

func businessDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Commit applies the frozen lines of the day's prepared attempt, closes the day
// and opens the next one. A repeated commit returns the stored result.
func (u *LotteryUseCase) Commit(ctx context.Context, actor model.Actor, dayID int64, opts model.CommitOptions) (*model.LotteryCommitResult, error) {
	if err := authorize(actor, model.RoleManager); err != nil {
		return nil, err
	}
	if u.opts.Deferred && !opts.DeferredOverride {
		return nil, fmt.Errorf("lottery day %d closes only with the day-close finalize: %w", dayID, domainErrors.ErrConflict)
	}

	result, err := u.lottery.Commit(ctx, actor.StoreID, dayID, u.now())
	if err != nil {
		if errors.Is(err, domainErrors.ErrExpired) {
			u.logger.Warn("lottery prepare expired before commit", slog.Int64("day_id", dayID))
		}
		return nil, err
	}
	u.logger.Info("lottery day committed",
		slog.Int64("day_id", result.DayID),
		slog.Int("closings_created", result.ClosingsCreated),
		slog.String("lottery_total", result.LotteryTotal.StringFixed(2)),
		slog.Int64("next_day_id", result.NextDayID),
	)
	return result, nil
}

// Cancel discards the day's prepared attempt without applying it.
func (u *LotteryUseCase) Cancel(ctx context.Context, actor model.Actor, dayID int64) (*model.LotteryClosingAttempt, error) {
	if err := authorize(actor, model.RoleManager); err != nil {
		return nil, err
	}
	attempt, err := u.lottery.Cancel(ctx, actor.StoreID, dayID, u.now())
	if err != nil {
		return nil, err
	}
	u.logger.Info("lottery closing cancelled", slog.Int64("day_id", dayID), slog.String("phase", string(attempt.Phase)))
	return attempt, nil
}

// Attempt returns the latest attempt of the day with expiry applied.
func (u *LotteryUseCase) Attempt(ctx context.Context, actor model.Actor, dayID int64) (*model.LotteryClosingAttempt, error) {
	if err := authorize(actor, model.RoleClerk); err != nil {
		return nil, err
	}
	return u.lottery.LatestAttempt(ctx, actor.StoreID, dayID, u.now())
}
