package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ruralpay/remittance/internal/models"
)

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Auth       AuthConfig
	Remittance RemittanceConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type LogConfig struct {
	Level  string
	Pretty bool
}

// AuthConfig holds the key used to verify staff bearer tokens.
type AuthConfig struct {
	JWTSecret string
}

// RemittanceConfig drives the remittance core.
type RemittanceConfig struct {
	TokenSecret            string
	TokenSalt              string
	TokenTTL               time.Duration
	ReaperTick             time.Duration
	ReaperBatch            int
	ReaperPerTenant        int
	ReaperJitter           time.Duration
	RedeemMaxRetries       int
	ApprovalPolicy         map[models.RemittanceType]int
	CurrencyScales         map[string]int32
	DefaultScale           int32
	PreApprovalRedeemTypes []models.RemittanceType
	QRSize                 int
	NotifyTimeout          time.Duration
	RateCacheTTL           time.Duration
	// DebitClaimGrace is how long a debit claim may stay open before the
	// reaper finishes it on the claimant's behalf.
	DebitClaimGrace time.Duration
	// SupervisorRoles may approve and fail remittances. Empty allows any role.
	SupervisorRoles []string
}

// DefaultApprovalPolicy is the number of approval levels required per type.
func DefaultApprovalPolicy() map[models.RemittanceType]int {
	return map[models.RemittanceType]int{
		models.TypeDomestic:      1,
		models.TypeInterBranch:   1,
		models.TypeCrypto:        1,
		models.TypeInternational: 2,
	}
}

var envBindings = map[string]string{
	"server.port":                          "PORT",
	"server.allowed_origins":               "CORS_ALLOWED_ORIGINS",
	"log.level":                            "LOG_LEVEL",
	"log.pretty":                           "LOG_PRETTY",
	"jwt.secret_key":                       "JWT_SECRET_KEY",
	"remittance.token_secret":              "REMITTANCE_TOKEN_SECRET",
	"remittance.token_salt":                "REMITTANCE_TOKEN_SALT",
	"remittance.token_ttl":                 "REMITTANCE_TOKEN_TTL",
	"remittance.reaper_tick":               "REMITTANCE_REAPER_TICK",
	"remittance.reaper_batch":              "REMITTANCE_REAPER_BATCH",
	"remittance.reaper_per_tenant":         "REMITTANCE_REAPER_PER_TENANT",
	"remittance.reaper_jitter":             "REMITTANCE_REAPER_JITTER",
	"remittance.redeem_max_retries":        "REMITTANCE_REDEEM_MAX_RETRIES",
	"remittance.approval_policy":           "REMITTANCE_APPROVAL_POLICY",
	"remittance.currency_scales":           "REMITTANCE_CURRENCY_SCALES",
	"remittance.default_scale":             "REMITTANCE_DEFAULT_SCALE",
	"remittance.pre_approval_redeem_types": "REMITTANCE_PRE_APPROVAL_REDEEM_TYPES",
	"remittance.qr_size":                   "REMITTANCE_QR_SIZE",
	"remittance.notify_timeout":            "REMITTANCE_NOTIFY_TIMEOUT",
	"remittance.rate_cache_ttl":            "REMITTANCE_RATE_CACHE_TTL",
	"remittance.debit_claim_grace":         "REMITTANCE_DEBIT_CLAIM_GRACE",
	"remittance.supervisor_roles":          "REMITTANCE_SUPERVISOR_ROLES",
}

// Load reads the optional .env file and the environment into the global viper instance.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	return FromViper(viper.GetViper())
}

// FromViper builds a Config from v, applying defaults first.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			ReadTimeout:     v.GetDuration("server.read_timeout"),
			WriteTimeout:    v.GetDuration("server.write_timeout"),
			IdleTimeout:     v.GetDuration("server.idle_timeout"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
			AllowedOrigins:  splitList(v.GetString("server.allowed_origins")),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Pretty: v.GetBool("log.pretty"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("jwt.secret_key"),
		},
		Remittance: RemittanceConfig{
			TokenSecret:      v.GetString("remittance.token_secret"),
			TokenSalt:        v.GetString("remittance.token_salt"),
			TokenTTL:         v.GetDuration("remittance.token_ttl"),
			ReaperTick:       v.GetDuration("remittance.reaper_tick"),
			ReaperBatch:      v.GetInt("remittance.reaper_batch"),
			ReaperPerTenant:  v.GetInt("remittance.reaper_per_tenant"),
			ReaperJitter:     v.GetDuration("remittance.reaper_jitter"),
			RedeemMaxRetries: v.GetInt("remittance.redeem_max_retries"),
			DefaultScale:     int32(v.GetInt("remittance.default_scale")),
			QRSize:           v.GetInt("remittance.qr_size"),
			NotifyTimeout:    v.GetDuration("remittance.notify_timeout"),
			RateCacheTTL:     v.GetDuration("remittance.rate_cache_ttl"),
			DebitClaimGrace:  v.GetDuration("remittance.debit_claim_grace"),
		},
	}

	rc := &cfg.Remittance

	rc.ApprovalPolicy = DefaultApprovalPolicy()
	if raw := v.GetString("remittance.approval_policy"); raw != "" {
		var overrides map[models.RemittanceType]int
		if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
			return nil, fmt.Errorf("invalid remittance.approval_policy: %w", err)
		}
		for t, levels := range overrides {
			rc.ApprovalPolicy[t] = levels
		}
	}

	rc.CurrencyScales = map[string]int32{}
	if raw := v.GetString("remittance.currency_scales"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &rc.CurrencyScales); err != nil {
			return nil, fmt.Errorf("invalid remittance.currency_scales: %w", err)
		}
	}

	for _, t := range splitList(v.GetString("remittance.pre_approval_redeem_types")) {
		rc.PreApprovalRedeemTypes = append(rc.PreApprovalRedeemTypes, models.RemittanceType(strings.ToUpper(t)))
	}

	for _, role := range splitList(v.GetString("remittance.supervisor_roles")) {
		rc.SupervisorRoles = append(rc.SupervisorRoles, strings.ToLower(role))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", "https://*,http://*")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("remittance.token_salt", "remittance-claim-token")
	v.SetDefault("remittance.token_ttl", 72*time.Hour)
	v.SetDefault("remittance.reaper_tick", 60*time.Second)
	v.SetDefault("remittance.reaper_batch", 256)
	v.SetDefault("remittance.reaper_per_tenant", 64)
	v.SetDefault("remittance.reaper_jitter", 5*time.Second)
	v.SetDefault("remittance.redeem_max_retries", 3)
	v.SetDefault("remittance.default_scale", 2)
	v.SetDefault("remittance.pre_approval_redeem_types", string(models.TypeInterBranch))
	v.SetDefault("remittance.qr_size", 256)
	v.SetDefault("remittance.notify_timeout", 2*time.Second)
	v.SetDefault("remittance.rate_cache_ttl", 30*time.Second)
	v.SetDefault("remittance.debit_claim_grace", time.Minute)
	v.SetDefault("remittance.supervisor_roles", "supervisor,admin")
}

// Validate rejects configurations the core cannot run with.
func (c *Config) Validate() error {
	rc := c.Remittance
	var errs []error

	if rc.TokenSecret == "" {
		errs = append(errs, errors.New("remittance.token_secret is required"))
	}
	if rc.TokenTTL < time.Second {
		errs = append(errs, errors.New("remittance.token_ttl must be at least 1s"))
	}
	if rc.ReaperTick <= 0 {
		errs = append(errs, errors.New("remittance.reaper_tick must be positive"))
	}
	if rc.ReaperBatch <= 0 {
		errs = append(errs, errors.New("remittance.reaper_batch must be positive"))
	}
	if rc.ReaperPerTenant <= 0 {
		errs = append(errs, errors.New("remittance.reaper_per_tenant must be positive"))
	}
	if rc.DebitClaimGrace <= 0 {
		errs = append(errs, errors.New("remittance.debit_claim_grace must be positive"))
	}
	if rc.RedeemMaxRetries < 1 {
		errs = append(errs, errors.New("remittance.redeem_max_retries must be at least 1"))
	}
	if rc.DefaultScale < 0 {
		errs = append(errs, errors.New("remittance.default_scale must not be negative"))
	}
	for t, levels := range rc.ApprovalPolicy {
		if !t.Valid() {
			errs = append(errs, fmt.Errorf("approval policy names unknown type %q", t))
		}
		if levels < 1 {
			errs = append(errs, fmt.Errorf("approval policy for %s must require at least 1 level", t))
		}
	}
	for code, scale := range rc.CurrencyScales {
		if scale < 0 {
			errs = append(errs, fmt.Errorf("currency scale for %s must not be negative", code))
		}
	}
	for _, t := range rc.PreApprovalRedeemTypes {
		if !t.Valid() {
			errs = append(errs, fmt.Errorf("pre-approval redeem type %q is unknown", t))
		}
	}

	return errors.Join(errs...)
}

// ScaleFor returns the decimal places for a currency code.
func (rc RemittanceConfig) ScaleFor(currency string) int32 {
	if scale, ok := rc.CurrencyScales[strings.ToUpper(currency)]; ok {
		return scale
	}
	return rc.DefaultScale
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
