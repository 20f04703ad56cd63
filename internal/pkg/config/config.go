// Package config loads service settings from the environment and ./.env.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Port string

	Database Database
	Flow     Flow

	GoogleProjectId     string
	FirebaseAuthEnabled bool
	CorsAllowedOrigins  []string

	TransferTimeout     time.Duration
	SettlementClaimTTL  time.Duration
	ReconcileInterval   time.Duration
	MatchMaxAttempts    int
	LedgerRetryAttempts int
}

type Database struct {
	Driver       string
	Url          string
	MaxOpenConns int
	AutoMigrate  bool
}

type Flow struct {
	AccessHost             string
	EscrowContractAddress  string
	AdminKmsResourceName   string
	AdminAuthorizerAddress string
	AdminKeyIndex          int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", ":8080")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_MAX_OPEN_CONNS", 50)
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("FIREBASE_AUTH_ENABLED", true)
	v.SetDefault("ADMIN_KEY_INDEX", 0)
	v.SetDefault("TRANSFER_TIMEOUT", "60s")
	v.SetDefault("SETTLEMENT_CLAIM_TTL", "15m")
	v.SetDefault("RECONCILE_INTERVAL", "1m")
	v.SetDefault("MATCH_MAX_ATTEMPTS", 3)
	v.SetDefault("LEDGER_RETRY_ATTEMPTS", 4)
}

// Load reads the configuration. A missing ./.env file is not an error.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetConfigFile("./.env")
	v.SetConfigType("env")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Debug().Err(err).Msg("No .env config file loaded")
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port: v.GetString("PORT"),
		Database: Database{
			Driver:       strings.ToLower(v.GetString("DB_DRIVER")),
			Url:          v.GetString("DB_URL"),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
		},
		Flow: Flow{
			AccessHost:             v.GetString("FLOW_ACCESS_HOST"),
			EscrowContractAddress:  v.GetString("ESCROW_CONTRACT_ADDRESS"),
			AdminKmsResourceName:   v.GetString("ADMIN_GCP_KMS_RESOURCE_NAME"),
			AdminAuthorizerAddress: v.GetString("ADMIN_AUTHORIZER_ADDR"),
			AdminKeyIndex:          v.GetInt("ADMIN_KEY_INDEX"),
		},
		GoogleProjectId:     v.GetString("GOOGLE_PROJECT_ID"),
		FirebaseAuthEnabled: v.GetBool("FIREBASE_AUTH_ENABLED"),
		CorsAllowedOrigins:  splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		TransferTimeout:     v.GetDuration("TRANSFER_TIMEOUT"),
		SettlementClaimTTL:  v.GetDuration("SETTLEMENT_CLAIM_TTL"),
		ReconcileInterval:   v.GetDuration("RECONCILE_INTERVAL"),
		MatchMaxAttempts:    v.GetInt("MATCH_MAX_ATTEMPTS"),
		LedgerRetryAttempts: v.GetInt("LEDGER_RETRY_ATTEMPTS"),
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}
	if c.Database.Url == "" {
		errs = append(errs, errors.New("DB_URL is required"))
	}
	if c.MatchMaxAttempts < 1 {
		errs = append(errs, errors.New("MATCH_MAX_ATTEMPTS must be at least 1"))
	}
	if c.LedgerRetryAttempts < 1 {
		errs = append(errs, errors.New("LEDGER_RETRY_ATTEMPTS must be at least 1"))
	}
	if c.SettlementClaimTTL <= c.TransferTimeout {
		errs = append(errs, errors.New("SETTLEMENT_CLAIM_TTL must be longer than TRANSFER_TIMEOUT"))
	}
	if c.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("RECONCILE_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

const responseMargin = 30 * time.Second

// HTTPWriteTimeout covers the slowest resolve: a payout that runs into
// TRANSFER_TIMEOUT followed by a receipt lookup bounded the same way.
func (c Config) HTTPWriteTimeout() time.Duration {
	return 2*c.TransferTimeout + responseMargin
}

// FlowEnabled reports whether enough settings are present to reach the chain.
func (c Config) FlowEnabled() bool {
	return c.Flow.AccessHost != "" && c.Flow.EscrowContractAddress != "" &&
		c.Flow.AdminKmsResourceName != "" && c.Flow.AdminAuthorizerAddress != ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
