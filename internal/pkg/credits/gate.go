package credits

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2/log"
)

// Account is the part of the ledger the gate needs.
type Account interface {
	CanTransform(ctx context.Context, userID uint) (bool, error)
	Debit(ctx context.Context, userID uint) (int, error)
}

// TransformFunc performs one transform. The returned discard func, if any,
// undoes its side effects when the credit cannot be taken afterwards.
type TransformFunc func(ctx context.Context) (discard func(), err error)

// Gate charges one credit per successful transform.
type Gate struct {
	account Account
}

func NewGate(account Account) *Gate {
	return &Gate{account: account}
}

// Run checks the balance, runs fn and debits one credit when fn succeeds.
// A failed fn costs nothing. If a concurrent request spent the last credit
// while fn ran, the result is discarded and ErrInsufficientCredits returned.
func (g *Gate) Run(ctx context.Context, userID uint, fn TransformFunc) (int, error) {
	ok, err := g.account.CanTransform(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrInsufficientCredits
	}

	discard, err := fn(ctx)
	if err != nil {
		return 0, err
	}

	balance, err := g.account.Debit(ctx, userID)
	if err != nil {
		if discard != nil {
			discard()
		}
		if errors.Is(err, ErrInsufficientCredits) {
			log.Infof("[Credits] user %d lost the race for the last credit, transform discarded", userID)
		}
		return 0, err
	}
	return balance, nil
}
