package config

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port                          string `mapstructure:"PORT"`
	Env                           string `mapstructure:"APP_ENV"`
	DatabaseDriver                string `mapstructure:"DATABASE_DRIVER"`
	DatabaseDSN                   string `mapstructure:"DATABASE_DSN"`
	PublicBaseURL                 string `mapstructure:"PUBLIC_BASE_URL"`
	JWTSecret                     string `mapstructure:"JWT_SECRET"`
	OAuthClientID                 string `mapstructure:"OAUTH_CLIENT_ID"`
	OAuthClientSecret             string `mapstructure:"OAUTH_CLIENT_SECRET"`
	OAuthRedirectURL              string `mapstructure:"OAUTH_REDIRECT_URL"`
	SMTPHost                      string `mapstructure:"SMTP_HOST"`
	SMTPPort                      int    `mapstructure:"SMTP_PORT"`
	SMTPUsername                  string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword                  string `mapstructure:"SMTP_PASSWORD"`
	MailFrom                      string `mapstructure:"MAIL_FROM"`
	DiscordBotToken               string `mapstructure:"DISCORD_BOT_TOKEN"`
	DiscordNotificationsChannelID string `mapstructure:"DISCORD_NOTIFICATIONS_CHANNEL_ID"`
	ReportsBucket                 string `mapstructure:"REPORTS_BUCKET"`
	ReportsRegion                 string `mapstructure:"REPORTS_REGION"`
	ReportsEndpoint               string `mapstructure:"REPORTS_ENDPOINT"`
	ReportsAccessKeyID            string `mapstructure:"REPORTS_ACCESS_KEY_ID"`
	ReportsSecretAccessKey        string `mapstructure:"REPORTS_SECRET_ACCESS_KEY"`
	EnableMetrics                 bool   `mapstructure:"ENABLE_METRICS"`
	BootstrapAdminEmail           string `mapstructure:"BOOTSTRAP_ADMIN_EMAIL"`
}

// IsDevelopment reports whether the process runs with development logging.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	viper.SetDefault("PORT", "8080")
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("DATABASE_DRIVER", "sqlite")
	viper.SetDefault("DATABASE_DSN", "camp.db")
	viper.SetDefault("PUBLIC_BASE_URL", "http://127.0.0.1:8080")
	viper.SetDefault("OAUTH_REDIRECT_URL", "http://127.0.0.1:8080/auth/callback")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("REPORTS_REGION", "auto")
	viper.SetDefault("ENABLE_METRICS", true)

	viper.BindEnv("JWT_SECRET")
	viper.BindEnv("OAUTH_CLIENT_ID")
	viper.BindEnv("OAUTH_CLIENT_SECRET")
	viper.BindEnv("SMTP_HOST")
	viper.BindEnv("SMTP_USERNAME")
	viper.BindEnv("SMTP_PASSWORD")
	viper.BindEnv("MAIL_FROM")
	viper.BindEnv("DISCORD_BOT_TOKEN")
	viper.BindEnv("DISCORD_NOTIFICATIONS_CHANNEL_ID")
	viper.BindEnv("REPORTS_BUCKET")
	viper.BindEnv("REPORTS_ENDPOINT")
	viper.BindEnv("REPORTS_ACCESS_KEY_ID")
	viper.BindEnv("REPORTS_SECRET_ACCESS_KEY")
	viper.BindEnv("BOOTSTRAP_ADMIN_EMAIL")

	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	return &config
}
