package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Env            string `env:"ENVIRONMENT"`
	ServerPort     int    `env:"SERVER_PORT" envDefault:"8080"`
	ServerDNS      string `env:"SERVER_DNS" envDefault:"http://localhost:8080"`
	BasicAuthCreds string `env:"BASIC_AUTH_CREDS"`
	DBPath         string `env:"DB_PATH" envDefault:"marketoracle.sqlite"`

	// HomeTZ is where dispatch times are anchored; DisplayTZ is the second
	// zone rendered on the dashboard.
	HomeTZ    string `env:"HOME_TZ" envDefault:"Asia/Taipei"`
	DisplayTZ string `env:"DISPLAY_TZ" envDefault:"Europe/Dublin"`

	SubscriberQuota  int `env:"SUBSCRIBER_QUOTA" envDefault:"10"`
	StockCap         int `env:"STOCK_CAP" envDefault:"5"`
	ManualTriggerCap int `env:"MANUAL_TRIGGER_CAP" envDefault:"2"`

	// SingleTenant switches the roster from per-subscriber records to the
	// single global watchlist below.
	SingleTenant bool `env:"SINGLE_TENANT"`
	Global       struct {
		Stocks     []string `env:"STOCK_LIST" envSeparator:","`
		Recipients []string `env:"RECEIVER_EMAILS" envSeparator:","`
		Schedule   string   `env:"REPORT_SCHEDULE" envDefault:"AFTERNOON"`
	}

	Mailgun struct {
		Domain      string `env:"MAILGUN_DOMAIN"`
		APIKey      string `env:"MAILGUN_API_KEY"`
		SenderFrom  string `env:"MAILGUN_SENDER_FROM"`
		TimeoutSecs int    `env:"MAILGUN_TIMEOUT_SECS" envDefault:"10"`
	}

	AI struct {
		APIKey  string `env:"AI_API_KEY"`
		BaseURL string `env:"AI_BASE_URL"`
		Model   string `env:"AI_MODEL" envDefault:"gpt-4o-mini"`
	}

	log   *zap.Logger
	creds map[string]string

	home    *time.Location
	display *time.Location
}

func NewConfig(lc fx.Lifecycle, log *zap.Logger) *Config {
	cfg := &Config{log: log}
	if err := env.Parse(cfg); err != nil {
		log.Sugar().Panic(err)
	}

	creds, err := cfg.parseCreds()
	if err != nil {
		if cfg.Env != "production" {
			cfg.log.Sugar().Infof("%s (credentials will be set to default in development env)", err)
			creds = map[string]string{"admin": "password"}
		} else {
			cfg.log.Sugar().Panic(err)
		}
	}
	cfg.creds = creds

	cfg.home, err = time.LoadLocation(cfg.HomeTZ)
	if err != nil {
		log.Sugar().Panicf("bad HOME_TZ %q: %v", cfg.HomeTZ, err)
	}
	cfg.display, err = time.LoadLocation(cfg.DisplayTZ)
	if err != nil {
		log.Sugar().Panicf("bad DISPLAY_TZ %q: %v", cfg.DisplayTZ, err)
	}

	return cfg
}

func (cfg *Config) GetCreds() map[string]string {
	return cfg.creds
}

// Home is the service's home time zone: calendar days for the manual trigger
// counter and dispatch hours are both measured here.
func (cfg *Config) Home() *time.Location {
	return cfg.home
}

func (cfg *Config) Display() *time.Location {
	return cfg.display
}

func (cfg *Config) parseCreds() (map[string]string, error) {
	if cfg.BasicAuthCreds == "" {
		return nil, errors.New("BASIC_AUTH_CREDS envvar must be populated")
	}

	creds := strings.Split(cfg.BasicAuthCreds, ",")
	if len(creds) == 0 {
		return nil, errors.New("BASIC_AUTH_CREDS envvar should be filled with comma-separated values -- user1:pass1,user2:pass2")
	}

	result := make(map[string]string)
	for _, cred := range creds {
		userPass := strings.Split(cred, ":")
		if len(userPass) != 2 {
			return nil, fmt.Errorf("failed to parse '%s', each credential should be delimited by a colon -- user1:pass1,user2:pass2", cred)
		}

		user, pass := userPass[0], userPass[1]
		result[strings.Trim(user, " ")] = strings.Trim(pass, " ")
	}

	return result, nil
}
