package credits

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memAccount is an in-memory Account with the same atomic debit semantics.
type memAccount struct {
	mu      sync.Mutex
	balance int
}

func (m *memAccount) CanTransform(context.Context, uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance > 0, nil
}

func (m *memAccount) Debit(context.Context, uint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balance <= 0 {
		return 0, ErrInsufficientCredits
	}
	m.balance--
	return m.balance, nil
}

func TestGateDeniesWithoutCredits(t *testing.T) {
	gate := NewGate(&memAccount{balance: 0})
	ran := false

	_, err := gate.Run(context.Background(), 1, func(context.Context) (func(), error) {
		ran = true
		return nil, nil
	})

	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.False(t, ran)
}

func TestGateFailedTransformCostsNothing(t *testing.T) {
	acct := &memAccount{balance: 2}
	gate := NewGate(acct)
	boom := errors.New("generation failed")

	_, err := gate.Run(context.Background(), 1, func(context.Context) (func(), error) {
		return nil, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, acct.balance)
}

func TestGateDebitsOnSuccess(t *testing.T) {
	acct := &memAccount{balance: 2}
	gate := NewGate(acct)

	balance, err := gate.Run(context.Background(), 1, func(context.Context) (func(), error) {
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, balance)
}

func TestGateTwoTransformsOnLastCredit(t *testing.T) {
	acct := &memAccount{balance: 1}
	gate := NewGate(acct)

	// Both requests pass the balance check before either debits.
	start := make(chan struct{})
	var passed sync.WaitGroup
	passed.Add(2)

	var mu sync.Mutex
	var results []error
	discarded := 0

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gate.Run(context.Background(), 1, func(context.Context) (func(), error) {
				passed.Done()
				<-start
				return func() {
					mu.Lock()
					discarded++
					mu.Unlock()
				}, nil
			})
			mu.Lock()
			results = append(results, err)
			mu.Unlock()
		}()
	}
	passed.Wait()
	close(start)
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientCredits)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, discarded)
	assert.Equal(t, 0, acct.balance)
}
