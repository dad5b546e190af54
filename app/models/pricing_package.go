package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	REGION_IN     = "IN"
	REGION_GLOBAL = "GLOBAL"

	CURRENCY_INR = "INR"
	CURRENCY_USD = "USD"
)

// PricingPackage is a purchasable bundle of credits. Rows are seeded by the
// admin CLI; only IsActive changes once an order references a package.
type PricingPackage struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Name              string          `gorm:"type:varchar(100);not null" json:"name" yaml:"name" validate:"required,max=100"`
	Credits           int             `gorm:"not null" json:"credits" yaml:"credits" validate:"gt=0"`
	PriceINR          decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"price_inr" yaml:"price_inr"`
	PriceUSD          decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"price_usd" yaml:"price_usd"`
	Region            string          `gorm:"type:varchar(10);not null;default:'GLOBAL';index" json:"region" yaml:"region" validate:"oneof=IN GLOBAL"`
	IsActive          bool            `gorm:"not null;default:true;index" json:"is_active" yaml:"is_active"`
	IsIntroOffer      bool            `gorm:"not null;default:false" json:"is_intro_offer" yaml:"is_intro_offer"`
	ExternalProductID string          `gorm:"type:varchar(255)" json:"-" yaml:"external_product_id"`
	SortOrder         int             `gorm:"not null;default:0" json:"sort_order" yaml:"sort_order"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at" yaml:"-"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at" yaml:"-"`
}

// Price returns the charge amount and currency for the package's own region.
// Orders copy this at creation and never look it up again.
func (p *PricingPackage) Price() (decimal.Decimal, string) {
	if p.Region == REGION_IN {
		return p.PriceINR, CURRENCY_INR
	}
	return p.PriceUSD, CURRENCY_USD
}
