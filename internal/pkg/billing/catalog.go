package billing

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/ManuelReschke/Ghiblit/app/models"
)

// RegionFromCountry maps an ISO country code to a pricing region.
func RegionFromCountry(country string) string {
	if strings.EqualFold(strings.TrimSpace(country), "IN") {
		return models.REGION_IN
	}
	return models.REGION_GLOBAL
}

// EligiblePackages filters packages for a region and intro-offer state.
// An empty result is valid.
func EligiblePackages(all []models.PricingPackage, region string, introRedeemed bool) []models.PricingPackage {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = models.REGION_GLOBAL
	}

	active := filterPackages(all, func(p models.PricingPackage) bool { return p.IsActive })
	regional := filterPackages(active, func(p models.PricingPackage) bool { return p.Region == region })
	if len(regional) == 0 {
		regional = filterPackages(active, func(p models.PricingPackage) bool { return p.Region == models.REGION_GLOBAL })
	}
	if !introRedeemed {
		return regional
	}

	out := filterPackages(regional, func(p models.PricingPackage) bool { return !p.IsIntroOffer })
	if len(out) == 0 {
		out = filterPackages(active, func(p models.PricingPackage) bool {
			return p.Region == models.REGION_GLOBAL && !p.IsIntroOffer
		})
	}
	return out
}

// Eligible returns the packages the user may buy from region.
func (s *Service) Eligible(ctx context.Context, userID uint, region string) ([]models.PricingPackage, error) {
	repo := s.repo.WithContext(ctx)
	all, err := repo.ListActivePackages()
	if err != nil {
		return nil, err
	}
	redeemed, err := profileIntroRedeemed(repo, userID)
	if err != nil {
		return nil, err
	}
	return EligiblePackages(all, region, redeemed), nil
}

func profileIntroRedeemed(repo Repository, userID uint) (bool, error) {
	p, err := repo.GetUserProfile(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return p.IntroOfferRedeemed, nil
}

func filterPackages(in []models.PricingPackage, keep func(models.PricingPackage) bool) []models.PricingPackage {
	out := make([]models.PricingPackage, 0, len(in))
	for _, p := range in {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
