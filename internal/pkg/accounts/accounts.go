package accounts

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Ghiblit/app/models"
	"github.com/ManuelReschke/Ghiblit/app/repository"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/cache"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/shortener"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/utils"
)

var (
	ErrUserDisabled = errors.New("user disabled")
	ErrUserNotFound = errors.New("user not found")
	ErrMissingEmail = errors.New("provider returned no email")
)

var usernameCleaner = regexp.MustCompile(`[^a-z0-9_.-]+`)

// Identity is what an OAuth provider tells us about a user.
type Identity struct {
	Provider       string
	ProviderUserID string
	Email          string
	FirstName      string
	LastName       string
	NickName       string
	AvatarURL      string
	ExpiresAt      time.Time
}

// ProfileView is the /users/me payload. It is what the profile cache stores.
type ProfileView struct {
	ID                 uint   `json:"id"`
	Username           string `json:"username"`
	Email              string `json:"email"`
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	AvatarURL          string `json:"avatar_url,omitempty"`
	Role               string `json:"role"`
	CreditBalance      int    `json:"credit_balance"`
	IntroOfferRedeemed bool   `json:"intro_offer_redeemed"`
	ImagesCount        int64  `json:"images_count"`
}

type Service struct {
	users         repository.UserRepository
	images        repository.ImageRepository
	profiles      *cache.ProfileCache
	signupCredits int
	now           func() time.Time
}

// NewService builds the accounts service. profiles may be nil.
func NewService(users repository.UserRepository, images repository.ImageRepository, profiles *cache.ProfileCache, signupCredits int) *Service {
	return &Service{users: users, images: images, profiles: profiles, signupCredits: signupCredits, now: time.Now}
}

// Login resolves id to a local user, creating the user with signupCredits
// free credits on first login. The bool is true for a new user.
func (s *Service) Login(ctx context.Context, id Identity) (*models.User, bool, error) {
	user, err := s.users.GetByProvider(id.Provider, id.ProviderUserID)
	created := false
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		user, created, err = s.linkOrCreate(id)
		if err != nil {
			return nil, false, err
		}
	default:
		return nil, false, err
	}

	if !user.IsActive() {
		return nil, false, ErrUserDisabled
	}
	if err := s.users.TouchLastLogin(user.ID, s.now()); err != nil {
		log.Warnf("[Accounts] Failed to update last login for user %d: %v", user.ID, err)
	}
	return user, created, nil
}

func (s *Service) linkOrCreate(id Identity) (*models.User, bool, error) {
	email := strings.ToLower(strings.TrimSpace(id.Email))
	if email == "" {
		return nil, false, ErrMissingEmail
	}

	account := &models.ProviderAccount{Provider: id.Provider, ProviderUserID: id.ProviderUserID}
	if !id.ExpiresAt.IsZero() {
		account.ExpiresAt = &id.ExpiresAt
	}

	user, err := s.users.GetByEmail(email)
	if err == nil {
		account.UserID = user.ID
		if err := s.users.LinkProvider(account); err != nil {
			return nil, false, fmt.Errorf("link provider: %w", err)
		}
		log.Infof("[Accounts] Linked %s identity to existing user %d", id.Provider, user.ID)
		return user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	username, err := s.uniqueUsername(id, email)
	if err != nil {
		return nil, false, err
	}
	user, err = models.NewUser(username, email, id.FirstName, id.LastName)
	if err != nil {
		return nil, false, err
	}
	user.AvatarURL = id.AvatarURL
	if user.AvatarURL == "" {
		user.AvatarURL = utils.GetGravatarURL(email, 200)
	}

	if _, err := s.users.CreateWithProfile(user, s.signupCredits); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	account.UserID = user.ID
	if err := s.users.LinkProvider(account); err != nil {
		return nil, false, fmt.Errorf("link provider: %w", err)
	}
	log.Infof("[Accounts] Created user %d (%s) with %d signup credits", user.ID, username, s.signupCredits)
	return user, true, nil
}

func (s *Service) uniqueUsername(id Identity, email string) (string, error) {
	base := id.NickName
	if base == "" {
		base, _, _ = strings.Cut(email, "@")
	}
	base = usernameCleaner.ReplaceAllString(strings.ToLower(base), "")
	if len(base) < 3 {
		base = "user" + base
	}
	if len(base) > 140 {
		base = base[:140]
	}

	candidate := base
	for i := 0; i < 5; i++ {
		exists, err := s.users.UsernameExists(candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		suffix, err := shortener.GenerateLowerSlug(6)
		if err != nil {
			return "", err
		}
		candidate = base + "-" + suffix
	}
	return "", fmt.Errorf("no free username for %s", base)
}

// Profile returns the profile view of userID, read through the profile cache.
func (s *Service) Profile(ctx context.Context, userID uint) (*ProfileView, error) {
	if s.profiles != nil {
		var cached ProfileView
		if hit, err := s.profiles.Get(ctx, userID, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	user, err := s.users.GetByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	view := &ProfileView{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		AvatarURL: user.AvatarURL,
		Role:      user.Role,
	}

	profile, err := s.users.GetProfile(userID)
	switch {
	case err == nil:
		view.CreditBalance = profile.CreditBalance
		view.IntroOfferRedeemed = profile.IntroOfferRedeemed
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	if s.images != nil {
		if n, err := s.images.CountByUserID(userID); err == nil {
			view.ImagesCount = n
		}
	}

	if s.profiles != nil {
		if err := s.profiles.Set(ctx, userID, view); err != nil {
			log.Warnf("[Accounts] Failed to cache profile of user %d: %v", userID, err)
		}
	}
	return view, nil
}

// User returns the user record for token issuance.
func (s *Service) User(userID uint) (*models.User, error) {
	user, err := s.users.GetByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}
