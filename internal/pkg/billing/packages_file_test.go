package billing

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Ghiblit/app/models"
)

func TestLoadPackages(t *testing.T) {
	doc := `
packages:
  - name: Starter
    credits: 5
    price_inr: "99"
    region: IN
    sort_order: 1
  - name: Intro
    credits: 2
    price_usd: 0.99
    region: GLOBAL
    is_intro_offer: true
  - name: Legacy
    credits: 50
    price_usd: "19.999"
    is_active: false
`
	pkgs, err := LoadPackages(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, pkgs, 3)

	assert.Equal(t, "Starter", pkgs[0].Name)
	assert.True(t, pkgs[0].PriceINR.Equal(decimal.NewFromInt(99)))
	assert.True(t, pkgs[0].IsActive)
	assert.Equal(t, models.REGION_IN, pkgs[0].Region)

	assert.True(t, pkgs[1].IsIntroOffer)
	assert.True(t, pkgs[1].PriceUSD.Equal(decimal.RequireFromString("0.99")))

	assert.False(t, pkgs[2].IsActive)
	assert.Equal(t, "20", pkgs[2].PriceUSD.String())
}

func TestLoadPackagesRejectsBadInput(t *testing.T) {
	_, err := LoadPackages(strings.NewReader("packages:\n  - name: X\n    price_inr: lots\n"))
	assert.Error(t, err)

	_, err = LoadPackages(strings.NewReader("packages:\n  - name: X\n    price_inr: \"-5\"\n"))
	assert.Error(t, err)

	_, err = LoadPackages(strings.NewReader("packages:\n  - name: X\n    colour: red\n"))
	assert.Error(t, err)
}
