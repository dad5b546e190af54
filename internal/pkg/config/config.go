package config

import (
	"errors"
	"time"

	envparse "github.com/caarlos0/env/v10"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/Ghiblit/internal/pkg/env"
)

// Config groups the typed settings of every external collaborator. Adapters are
// constructed from their own section instead of reading the environment themselves.
type Config struct {
	AppEnv    string `env:"APP_ENV" envDefault:"prod"`
	HTTP      HTTP
	Gateway   Gateway   `envPrefix:"DODO_"`
	ImageGen  ImageGen  `envPrefix:"OPENAI_"`
	Storage   Storage   `envPrefix:"S3_"`
	Auth      Auth
	Reconcile Reconcile `envPrefix:"RECONCILE_"`
}

type HTTP struct {
	Host         string `env:"APP_HOST" envDefault:"localhost"`
	Port         string `env:"APP_PORT" envDefault:"4000"`
	PublicDomain string `env:"PUBLIC_DOMAIN"`
	FrontendURL  string `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
}

// Gateway configures the Dodo Payments adapter.
type Gateway struct {
	APIKey        string        `env:"API_KEY"`
	WebhookSecret string        `env:"WEBHOOK_SECRET"`
	TestMode      bool          `env:"TEST_MODE" envDefault:"true"`
	BaseURL       string        `env:"BASE_URL"`
	ReturnURL     string        `env:"RETURN_URL"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"15s"`

	// Smallest charge the gateway accepts per currency, in major units.
	MinAmountINR decimal.Decimal `env:"MIN_AMOUNT_INR" envDefault:"50"`
	MinAmountUSD decimal.Decimal `env:"MIN_AMOUNT_USD" envDefault:"0.50"`
}

type ImageGen struct {
	APIKey  string        `env:"API_KEY"`
	BaseURL string        `env:"BASE_URL" envDefault:"https://api.openai.com/v1"`
	Model   string        `env:"IMAGE_MODEL" envDefault:"dall-e-2"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"120s"`
}

type Storage struct {
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Region          string `env:"REGION" envDefault:"us-east-1"`
	BucketName      string `env:"BUCKET_NAME" envDefault:"ghiblits"`
	EndpointURL     string `env:"ENDPOINT_URL"`
	PublicBaseURL   string `env:"PUBLIC_BASE_URL"`
}

type Auth struct {
	JWTSecret     string        `env:"JWT_SECRET"`
	JWTTTL        time.Duration `env:"JWT_TTL" envDefault:"24h"`
	GoogleKey     string        `env:"GOOGLE_KEY"`
	GoogleSecret  string        `env:"GOOGLE_SECRET"`
	SignupCredits int           `env:"SIGNUP_CREDITS" envDefault:"1"`
}

type Reconcile struct {
	Enabled  bool          `env:"ENABLED" envDefault:"true"`
	Interval time.Duration `env:"INTERVAL" envDefault:"2m"`
	MinAge   time.Duration `env:"MIN_AGE" envDefault:"1m"`
	MaxAge   time.Duration `env:"MAX_AGE" envDefault:"72h"`
	Batch    int           `env:"BATCH" envDefault:"50"`
}

// Load parses the configuration from the merged process and .env environment.
func Load() (*Config, error) {
	return LoadFrom(env.Merged())
}

// LoadFrom parses the configuration from an explicit key/value set.
func LoadFrom(values map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := envparse.ParseWithOptions(cfg, envparse.Options{Environment: values}); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AppEnv == "prod" {
		if c.Gateway.WebhookSecret == "" {
			return errors.New("DODO_WEBHOOK_SECRET is required in prod")
		}
		if c.Auth.JWTSecret == "" {
			return errors.New("JWT_SECRET is required in prod")
		}
	}
	if c.Auth.SignupCredits < 0 {
		return errors.New("SIGNUP_CREDITS must not be negative")
	}
	return nil
}

// IsDev reports whether the app runs in development mode.
func (c *Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// MinAmount returns the configured minimum charge for currency, or zero when
// none is configured.
func (g Gateway) MinAmount(currency string) decimal.Decimal {
	switch currency {
	case "INR":
		return g.MinAmountINR
	case "USD":
		return g.MinAmountUSD
	}
	return decimal.Zero
}

// GatewayBaseURL resolves the Dodo API host for the configured mode.
func (g Gateway) GatewayBaseURL() string {
	if g.BaseURL != "" {
		return g.BaseURL
	}
	if g.TestMode {
		return "https://test.dodopayments.com"
	}
	return "https://live.dodopayments.com"
}
