package controllers

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/ManuelReschke/Ghiblit/app/models"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/accounts"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/config"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/security"
)

type AuthController struct {
	accounts *accounts.Service
	auth     config.Auth
	frontend string
}

func NewAuthController(svc *accounts.Service, cfg *config.Config) *AuthController {
	return &AuthController{accounts: svc, auth: cfg.Auth, frontend: strings.TrimRight(cfg.HTTP.FrontendURL, "/")}
}

func (ac *AuthController) issue(user *models.User) (string, time.Time, error) {
	return security.IssueAccessToken(user.ID, user.Username, user.Role, ac.auth.JWTSecret, ac.auth.JWTTTL, time.Now())
}

// HandleOAuthBegin redirects to the provider's consent screen.
func (ac *AuthController) HandleOAuthBegin(c *fiber.Ctx) error {
	return gothfiber.BeginAuthHandler(c)
}

// HandleOAuthCallback finishes the provider login, creates the user on first
// login and hands an access token to the SPA via the URL fragment.
func (ac *AuthController) HandleOAuthCallback(c *fiber.Ctx) error {
	gu, err := gothfiber.CompleteUserAuth(c)
	if err != nil {
		log.Warnf("[Auth] OAuth callback failed: %v", err)
		return c.Redirect(ac.frontend+"/login?error=oauth_failed", fiber.StatusSeeOther)
	}

	user, created, err := ac.accounts.Login(c.UserContext(), accounts.Identity{
		Provider:       gu.Provider,
		ProviderUserID: gu.UserID,
		Email:          gu.Email,
		FirstName:      gu.FirstName,
		LastName:       gu.LastName,
		NickName:       gu.NickName,
		AvatarURL:      gu.AvatarURL,
		ExpiresAt:      gu.ExpiresAt,
	})
	if err != nil {
		_, code, _ := StatusForError(err)
		log.Warnf("[Auth] login via %s rejected: %v", gu.Provider, err)
		return c.Redirect(ac.frontend+"/login?error="+url.QueryEscape(code), fiber.StatusSeeOther)
	}

	token, expires, err := ac.issue(user)
	if err != nil {
		return renderError(c, err)
	}
	_ = gothfiber.Logout(c)

	fragment := url.Values{}
	fragment.Set("access_token", token)
	fragment.Set("expires_at", expires.UTC().Format(time.RFC3339))
	if created {
		fragment.Set("new_user", "1")
	}
	return c.Redirect(ac.frontend+"/auth/callback#"+fragment.Encode(), fiber.StatusSeeOther)
}

// HandleRefresh exchanges a valid access token for a fresh one.
func (ac *AuthController) HandleRefresh(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return nil
	}
	user, err := ac.accounts.User(userID)
	if err != nil {
		return renderError(c, err)
	}
	if !user.IsActive() {
		return renderError(c, accounts.ErrUserDisabled)
	}
	token, expires, err := ac.issue(user)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"access_token": token, "token_type": "Bearer", "expires_at": expires.UTC()})
}
