package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Ghiblit/app/models"
)

var (
	// ErrInsufficientCredits is returned when a debit finds the balance at zero.
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrInvalidAmount       = errors.New("credit amount must be at least 1")
	ErrProfileNotFound     = errors.New("user profile not found")
)

// Invalidator drops cached profile snapshots after a balance change.
type Invalidator interface {
	Invalidate(ctx context.Context, userID uint) error
}

// Ledger is the only code path that changes user_profiles.credit_balance.
type Ledger struct {
	db    *gorm.DB
	cache Invalidator
}

func NewLedger(db *gorm.DB, cache Invalidator) *Ledger {
	return &Ledger{db: db, cache: cache}
}

// Balance returns the current credit balance read from the database.
func (l *Ledger) Balance(ctx context.Context, userID uint) (int, error) {
	var p models.UserProfile
	err := l.db.WithContext(ctx).Select("credit_balance").Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrProfileNotFound
	}
	if err != nil {
		return 0, err
	}
	return p.CreditBalance, nil
}

// CanTransform reports whether the user holds at least one credit.
func (l *Ledger) CanTransform(ctx context.Context, userID uint) (bool, error) {
	balance, err := l.Balance(ctx, userID)
	if errors.Is(err, ErrProfileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return balance > 0, nil
}

// Debit removes exactly one credit. The check and the decrement are one
// conditional UPDATE so concurrent debits cannot take the balance below zero.
func (l *Ledger) Debit(ctx context.Context, userID uint) (int, error) {
	res := l.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("user_id = ? AND credit_balance > ?", userID, 0).
		Updates(map[string]interface{}{
			"credit_balance": gorm.Expr("credit_balance - ?", 1),
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("debit user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrInsufficientCredits
	}
	l.Invalidate(ctx, userID)
	return l.Balance(ctx, userID)
}

// Credit adds n credits outside of any order transaction.
func (l *Ledger) Credit(ctx context.Context, userID uint, n int) error {
	if err := ApplyCredit(l.db.WithContext(ctx), userID, n, false); err != nil {
		return err
	}
	l.Invalidate(ctx, userID)
	return nil
}

// Invalidate drops the cached profile. A cache failure is logged, never surfaced:
// the database write already succeeded.
func (l *Ledger) Invalidate(ctx context.Context, userID uint) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Invalidate(ctx, userID); err != nil {
		log.Warnf("[Credits] failed to invalidate profile cache for user %d: %v", userID, err)
	}
}

// ApplyCredit adds n credits on tx, optionally marking the intro offer as
// redeemed. It is meant to run inside the caller's transaction; the caller
// invalidates the cache after commit.
func ApplyCredit(tx *gorm.DB, userID uint, n int, markIntroRedeemed bool) error {
	if n < 1 {
		return ErrInvalidAmount
	}
	updates := map[string]interface{}{
		"credit_balance": gorm.Expr("credit_balance + ?", n),
		"updated_at":     time.Now(),
	}
	if markIntroRedeemed {
		updates["intro_offer_redeemed"] = true
	}
	res := tx.Model(&models.UserProfile{}).Where("user_id = ?", userID).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("credit user %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrProfileNotFound
	}
	return nil
}
