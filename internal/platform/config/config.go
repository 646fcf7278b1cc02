package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zark-commerce/api/internal/domain"
)

const (
	defaultEnvFile      = ".env"
	defaultPort         = "8080"
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second

	defaultShippingBaseURL       = "https://sandbox.melhorenvio.com.br/api/v2"
	defaultShippingOriginZip     = "01310100"
	defaultShippingUserAgent     = "Zark E-commerce (contato@zark.com)"
	defaultShippingTimeout       = 30 * time.Second
	defaultShippingCacheTTL      = 5 * time.Minute
	defaultShippingSweepInterval = 10 * time.Minute
	defaultShippingMinWidthCm    = 11
	defaultShippingMinHeightCm   = 2
	defaultShippingMinLengthCm   = 16
	defaultShippingMinWeightKg   = 0.001

	defaultRateLimitShippingMax    = 10
	defaultRateLimitShippingWindow = time.Minute

	defaultPixKey          = "zark@zarabatanas.com.br"
	defaultPixMerchantName = "ZARK"
	defaultPixMerchantCity = "Sao Paulo"
	defaultPixChargeTTL    = 15 * time.Minute
	defaultPixQRSize       = 300
)

var defaultShippingCarriers = []string{"correios", "jadlog"}

// defaultEstimateTiers mirrors the carrier-independent price table used when
// no provider credentials are configured: total weight breakpoint in kg
// mapped to a base price in cents, with a catch-all for heavier shipments.
var defaultEstimateTiers = []EstimateTier{
	{MaxWeightKg: 0.1, PriceCents: 1200},
	{MaxWeightKg: 1, PriceCents: 1800},
	{MaxWeightKg: 5, PriceCents: 2500},
	{CatchAll: true, PriceCents: 4500},
}

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Shipping  ShippingConfig
	RateLimit RateLimitConfig
	Pix       PixConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// ShippingConfig drives the rate quote engine: provider credentials, origin,
// parcel floor dimensions, carrier allow-list, caching and the estimate table.
type ShippingConfig struct {
	Token           string
	BaseURL         string
	OriginZip       string
	UserAgent       string
	ForceEstimate   bool
	RequestTimeout  time.Duration
	CacheTTL        time.Duration
	SweepInterval   time.Duration
	AllowedCarriers []string
	MinWidthCm      float64
	MinHeightCm     float64
	MinLengthCm     float64
	MinWeightKg     float64
	EstimateTiers   []EstimateTier
}

// EstimateTier maps a total-weight breakpoint to a base price used by the
// fallback estimate provider. A CatchAll tier applies to any heavier shipment.
type EstimateTier struct {
	MaxWeightKg float64
	PriceCents  int64
	CatchAll    bool
}

// RateLimitConfig controls request throttling on the shipping endpoint.
type RateLimitConfig struct {
	ShippingMax    int
	ShippingWindow time.Duration
}

// PixConfig holds the payee identity and charge parameters for PIX payloads.
type PixConfig struct {
	Key          string
	MerchantName string
	MerchantCity string
	ChargeTTL    time.Duration
	QRSize       int
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values
// in the map take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env
// overrides and environment variables.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Shipping: ShippingConfig{
			Token:           stringWithDefault(lookup, "API_SHIPPING_TOKEN", ""),
			BaseURL:         stringWithDefault(lookup, "API_SHIPPING_BASE_URL", defaultShippingBaseURL),
			OriginZip:       domain.NormalizePostalCode(stringWithDefault(lookup, "API_SHIPPING_ORIGIN_ZIP", defaultShippingOriginZip)),
			UserAgent:       stringWithDefault(lookup, "API_SHIPPING_USER_AGENT", defaultShippingUserAgent),
			ForceEstimate:   boolWithDefault(lookup, "API_SHIPPING_FORCE_ESTIMATE", false),
			RequestTimeout:  durationWithDefault(lookup, "API_SHIPPING_TIMEOUT", defaultShippingTimeout),
			CacheTTL:        durationWithDefault(lookup, "API_SHIPPING_CACHE_TTL", defaultShippingCacheTTL),
			SweepInterval:   durationWithDefault(lookup, "API_SHIPPING_CACHE_SWEEP_INTERVAL", defaultShippingSweepInterval),
			AllowedCarriers: csvWithDefault(lookup, "API_SHIPPING_ALLOWED_CARRIERS", defaultShippingCarriers),
			MinWidthCm:      floatWithDefault(lookup, "API_SHIPPING_MIN_WIDTH_CM", defaultShippingMinWidthCm),
			MinHeightCm:     floatWithDefault(lookup, "API_SHIPPING_MIN_HEIGHT_CM", defaultShippingMinHeightCm),
			MinLengthCm:     floatWithDefault(lookup, "API_SHIPPING_MIN_LENGTH_CM", defaultShippingMinLengthCm),
			MinWeightKg:     floatWithDefault(lookup, "API_SHIPPING_MIN_WEIGHT_KG", defaultShippingMinWeightKg),
			EstimateTiers:   tiersWithDefault(lookup, "API_SHIPPING_ESTIMATE_TIERS", defaultEstimateTiers),
		},
		RateLimit: RateLimitConfig{
			ShippingMax:    intWithDefault(lookup, "API_RATELIMIT_SHIPPING_MAX", defaultRateLimitShippingMax),
			ShippingWindow: durationWithDefault(lookup, "API_RATELIMIT_SHIPPING_WINDOW", defaultRateLimitShippingWindow),
		},
		Pix: PixConfig{
			Key:          stringWithDefault(lookup, "API_PIX_KEY", defaultPixKey),
			MerchantName: stringWithDefault(lookup, "API_PIX_MERCHANT_NAME", defaultPixMerchantName),
			MerchantCity: stringWithDefault(lookup, "API_PIX_MERCHANT_CITY", defaultPixMerchantCity),
			ChargeTTL:    durationWithDefault(lookup, "API_PIX_CHARGE_TTL", defaultPixChargeTTL),
			QRSize:       intWithDefault(lookup, "API_PIX_QR_SIZE", defaultPixQRSize),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if !domain.ValidPostalCode(cfg.Shipping.OriginZip) {
		missing = append(missing, "Shipping.OriginZip")
	}
	if strings.TrimSpace(cfg.Shipping.BaseURL) == "" {
		missing = append(missing, "Shipping.BaseURL")
	}
	if cfg.Shipping.RequestTimeout <= 0 {
		missing = append(missing, "Shipping.RequestTimeout")
	}
	if cfg.Shipping.CacheTTL <= 0 {
		missing = append(missing, "Shipping.CacheTTL")
	}
	if cfg.Shipping.SweepInterval <= 0 {
		missing = append(missing, "Shipping.SweepInterval")
	}
	if len(cfg.Shipping.AllowedCarriers) == 0 {
		missing = append(missing, "Shipping.AllowedCarriers")
	}
	if len(cfg.Shipping.EstimateTiers) == 0 {
		missing = append(missing, "Shipping.EstimateTiers")
	}
	if cfg.RateLimit.ShippingMax <= 0 {
		missing = append(missing, "RateLimit.ShippingMax")
	}
	if cfg.RateLimit.ShippingWindow <= 0 {
		missing = append(missing, "RateLimit.ShippingWindow")
	}
	if strings.TrimSpace(cfg.Pix.Key) == "" {
		missing = append(missing, "Pix.Key")
	}
	if strings.TrimSpace(cfg.Pix.MerchantName) == "" {
		missing = append(missing, "Pix.MerchantName")
	}
	if strings.TrimSpace(cfg.Pix.MerchantCity) == "" {
		missing = append(missing, "Pix.MerchantCity")
	}
	if cfg.Pix.ChargeTTL <= 0 {
		missing = append(missing, "Pix.ChargeTTL")
	}
	if cfg.Pix.QRSize <= 0 {
		missing = append(missing, "Pix.QRSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string, fallback []string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		out := make([]string, len(fallback))
		copy(out, fallback)
		return out
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// tiersWithDefault parses a tier table of the form "0.1=1200,1=1800,5=2500,*=4500"
// where keys are weight breakpoints in kg ("*" is the catch-all) and values are
// prices in cents. Malformed input falls back to the default table.
func tiersWithDefault(lookup func(string) (string, bool), key string, fallback []EstimateTier) []EstimateTier {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		out := make([]EstimateTier, len(fallback))
		copy(out, fallback)
		return out
	}

	entries := strings.Split(raw, ",")
	tiers := make([]EstimateTier, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return append([]EstimateTier(nil), fallback...)
		}
		price, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil || price <= 0 {
			return append([]EstimateTier(nil), fallback...)
		}
		breakpoint := strings.TrimSpace(parts[0])
		if breakpoint == "*" {
			tiers = append(tiers, EstimateTier{CatchAll: true, PriceCents: price})
			continue
		}
		maxKg, err := strconv.ParseFloat(breakpoint, 64)
		if err != nil || maxKg <= 0 {
			return append([]EstimateTier(nil), fallback...)
		}
		tiers = append(tiers, EstimateTier{MaxWeightKg: maxKg, PriceCents: price})
	}
	if len(tiers) == 0 {
		return append([]EstimateTier(nil), fallback...)
	}
	return tiers
}
