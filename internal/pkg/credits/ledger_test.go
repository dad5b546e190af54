package credits

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Ghiblit/app/models"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/testutil"
)

type countingInvalidator struct {
	mu    sync.Mutex
	calls map[uint]int
}

func (c *countingInvalidator) Invalidate(_ context.Context, userID uint) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[uint]int{}
	}
	c.calls[userID]++
	return nil
}

func (c *countingInvalidator) count(userID uint) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[userID]
}

func setupLedger(t *testing.T, balance int) (*Ledger, *gorm.DB, *countingInvalidator) {
	t.Helper()
	db := testutil.NewSQLiteDB(t, &models.UserProfile{})
	require.NoError(t, db.Create(&models.UserProfile{UserID: 1, CreditBalance: balance}).Error)
	inv := &countingInvalidator{}
	return NewLedger(db, inv), db, inv
}

func TestDebitDecrementsAndInvalidates(t *testing.T) {
	ledger, _, inv := setupLedger(t, 2)
	ctx := context.Background()

	balance, err := ledger.Debit(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, balance)
	assert.Equal(t, 1, inv.count(1))
}

func TestDebitAtZeroFailsAndLeavesZero(t *testing.T) {
	ledger, _, inv := setupLedger(t, 0)
	ctx := context.Background()

	_, err := ledger.Debit(ctx, 1)
	assert.True(t, errors.Is(err, ErrInsufficientCredits))

	balance, err := ledger.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
	assert.Equal(t, 0, inv.count(1))
}

func TestConcurrentDebitsFromOneYieldOneSuccess(t *testing.T) {
	ledger, _, _ := setupLedger(t, 1)
	ctx := context.Background()

	var ok, insufficient int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Debit(ctx, 1)
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case errors.Is(err, ErrInsufficientCredits):
				atomic.AddInt32(&insufficient, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok)
	assert.Equal(t, int32(7), insufficient)
	balance, err := ledger.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)
}

func TestCreditRequiresPositiveAmount(t *testing.T) {
	ledger, _, inv := setupLedger(t, 0)
	ctx := context.Background()

	assert.ErrorIs(t, ledger.Credit(ctx, 1, 0), ErrInvalidAmount)
	require.NoError(t, ledger.Credit(ctx, 1, 5))

	balance, err := ledger.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, balance)
	assert.Equal(t, 1, inv.count(1))
}

func TestApplyCreditMarksIntroRedeemed(t *testing.T) {
	_, db, _ := setupLedger(t, 0)

	require.NoError(t, ApplyCredit(db, 1, 3, true))

	var p models.UserProfile
	require.NoError(t, db.Where("user_id = ?", 1).First(&p).Error)
	assert.Equal(t, 3, p.CreditBalance)
	assert.True(t, p.IntroOfferRedeemed)

	assert.ErrorIs(t, ApplyCredit(db, 99, 1, false), ErrProfileNotFound)
}

func TestCanTransform(t *testing.T) {
	ledger, _, _ := setupLedger(t, 1)
	ctx := context.Background()

	ok, err := ledger.CanTransform(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ledger.CanTransform(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}
