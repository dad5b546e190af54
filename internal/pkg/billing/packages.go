package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Ghiblit/app/models"
)

// SeedResult summarises a SeedPackages run.
type SeedResult struct {
	Created     int
	Updated     int
	Locked      int
	Deactivated int64
}

// SeedPackages upserts packages by (name, region). A package that orders
// already reference keeps its price and credits; only is_active follows the
// input. With replace, active packages missing from the input are deactivated.
func (s *Service) SeedPackages(ctx context.Context, pkgs []models.PricingPackage, replace bool) (*SeedResult, error) {
	repo := s.repo.WithContext(ctx)
	v := validator.New()
	res := &SeedResult{}
	keep := make([]uint, 0, len(pkgs))

	for i := range pkgs {
		in := pkgs[i]
		in.Region = strings.ToUpper(strings.TrimSpace(in.Region))
		if in.Region == "" {
			in.Region = models.REGION_GLOBAL
		}
		if err := v.Struct(&in); err != nil {
			return res, fmt.Errorf("package %q: %w", in.Name, err)
		}
		amount, currency := in.Price()
		if !amount.IsPositive() {
			return res, fmt.Errorf("package %q: %s price must be positive", in.Name, currency)
		}

		existing, err := repo.FindPackage(in.Name, in.Region)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return res, err
		}
		if existing == nil {
			active := in.IsActive
			if err := repo.SavePackage(&in); err != nil {
				return res, err
			}
			// is_active has a column default, so an inactive row needs a second write.
			if !active {
				in.IsActive = false
				if err := repo.SavePackage(&in); err != nil {
					return res, err
				}
			}
			keep = append(keep, in.ID)
			res.Created++
			continue
		}

		keep = append(keep, existing.ID)
		referenced, err := repo.PackageReferenced(existing.ID)
		if err != nil {
			return res, err
		}
		if referenced {
			if existing.IsActive != in.IsActive {
				existing.IsActive = in.IsActive
				if err := repo.SavePackage(existing); err != nil {
					return res, err
				}
			}
			log.Warnf("[Billing] package %q (%s) is referenced by orders, only is_active was updated", in.Name, in.Region)
			res.Locked++
			continue
		}

		in.ID = existing.ID
		in.CreatedAt = existing.CreatedAt
		if err := repo.SavePackage(&in); err != nil {
			return res, err
		}
		res.Updated++
	}

	if replace {
		n, err := repo.DeactivatePackagesExcept(keep)
		if err != nil {
			return res, err
		}
		res.Deactivated = n
	}
	return res, nil
}
