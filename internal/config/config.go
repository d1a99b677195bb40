package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env                  string
	Port                 string
	SessionSecret        string
	DatabaseURL          string
	RedisURL             string
	StorageURL           string // e.g. https://xyzcompany.supabase.co (artifact store for document/receipt files)
	StorageSecretKey     string // must be the service_role key, not the anon key
	GatewayWebhookSecret string // HMAC secret for the payment-gateway webhook
	FrontendURLEndsWith  string
	DevPassword          string
	AllowCrossSiteDev    bool
	HealthAdminKey       string
	BrevoAPIKey          string // BREVO_API_KEY for transactional review emails
	MailFrom             string // MAIL_FROM sender email (default noreply@assohub.org)
	PortalBaseURL        string // Base URL for links in emails (e.g. https://portal.assohub.org)
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	port := viper.GetString("PORT")
	if port == "" {
		port = "8080"
	}
	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	dbURL := viper.GetString("DATABASE_URL_DEV")
	if env == "production" {
		dbURL = viper.GetString("DATABASE_URL_PROD")
	} else if env == "test" {
		dbURL = viper.GetString("DATABASE_URL_TEST")
	}
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL_DEV")
	}

	return &Config{
		Env:                  env,
		Port:                 port,
		SessionSecret:        viper.GetString("SESSION_SECRET"),
		DatabaseURL:          dbURL,
		RedisURL:             viper.GetString("REDIS_URL"),
		StorageURL:           viper.GetString("STORAGE_URL"),
		StorageSecretKey:     viper.GetString("STORAGE_SECRET_KEY"),
		GatewayWebhookSecret: viper.GetString("GATEWAY_WEBHOOK_SECRET"),
		FrontendURLEndsWith:  viper.GetString("FRONTEND_URL_ENDS_WITH"),
		DevPassword:          viper.GetString("DEV_PASSWORD"),
		AllowCrossSiteDev:    strings.EqualFold(viper.GetString("ALLOW_CROSS_SITE_DEV"), "true"),
		HealthAdminKey:       viper.GetString("HEALTH_ADMIN_KEY"),
		BrevoAPIKey:          viper.GetString("BREVO_API_KEY"),
		MailFrom:             viper.GetString("MAIL_FROM"),
		PortalBaseURL:        portalBaseURL(viper.GetString("PORTAL_BASE_URL")),
	}, nil
}

func portalBaseURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "https://portal.assohub.org"
	}
	return s
}
