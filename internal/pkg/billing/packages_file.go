package billing

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ManuelReschke/Ghiblit/app/models"
)

// packagesFile is the YAML layout read by the admin CLI.
type packagesFile struct {
	Packages []packageEntry `yaml:"packages"`
}

type packageEntry struct {
	Name              string `yaml:"name"`
	Credits           int    `yaml:"credits"`
	PriceINR          string `yaml:"price_inr"`
	PriceUSD          string `yaml:"price_usd"`
	Region            string `yaml:"region"`
	IsActive          *bool  `yaml:"is_active"`
	IsIntroOffer      bool   `yaml:"is_intro_offer"`
	ExternalProductID string `yaml:"external_product_id"`
	SortOrder         int    `yaml:"sort_order"`
}

// LoadPackages parses a packages YAML document. Prices are decimal strings;
// is_active defaults to true.
func LoadPackages(r io.Reader) ([]models.PricingPackage, error) {
	var doc packagesFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse packages: %w", err)
	}

	out := make([]models.PricingPackage, 0, len(doc.Packages))
	for i, e := range doc.Packages {
		inr, err := parsePrice(e.PriceINR)
		if err != nil {
			return nil, fmt.Errorf("package %d (%s): price_inr: %w", i, e.Name, err)
		}
		usd, err := parsePrice(e.PriceUSD)
		if err != nil {
			return nil, fmt.Errorf("package %d (%s): price_usd: %w", i, e.Name, err)
		}
		active := true
		if e.IsActive != nil {
			active = *e.IsActive
		}
		out = append(out, models.PricingPackage{
			Name:              e.Name,
			Credits:           e.Credits,
			PriceINR:          inr,
			PriceUSD:          usd,
			Region:            e.Region,
			IsActive:          active,
			IsIntroOffer:      e.IsIntroOffer,
			ExternalProductID: e.ExternalProductID,
			SortOrder:         e.SortOrder,
		})
	}
	return out, nil
}

func parsePrice(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %s", s)
	}
	return d.Round(2), nil
}
