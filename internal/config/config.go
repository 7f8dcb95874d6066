package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTokenExpiry   = 7 * 24 * time.Hour
	DefaultResetTokenTTL = time.Hour
)

type Config struct {
	MongoURI      string
	MongoDatabase string
	RedisURI      string
	Port          string
	Environment   string // ENV: production, development, etc.
	LogLevel      string

	JWTSecret   string
	TokenExpiry time.Duration

	ResetTokenTTL  time.Duration
	ResetURLBase   string // reset link is ResetURLBase + "/" + token
	RevealUnknown  bool   // forgetPassword returns false for unknown emails
	HashMemory     uint32 // argon2id memory in KiB
	HashTime       uint32
	HashThreads    uint8
	AllowedOrigins []string // CORS: from ALLOWED_ORIGINS or FRONTEND_URL(s)
	AllowedHost    string   // HOST: bare hostname enforced in production, empty disables

	MailHost     string
	MailPort     int
	MailUser     string
	MailPassword string
	MailFrom     string

	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	UploadFolder        string

	loadErrs []error
}

// TokenConfig is the explicit signing configuration handed to the token service.
type TokenConfig struct {
	Secret string
	Expiry time.Duration
}

func Load() *Config {
	allowedOrigins := parseOrigins(getEnv("ALLOWED_ORIGINS", ""))
	if len(allowedOrigins) == 0 {
		for _, u := range []string{getEnv("FRONTEND_URL", "http://localhost:3000"), getEnv("FRONTEND_URL_2", "")} {
			u = strings.TrimSpace(u)
			if u != "" {
				allowedOrigins = append(allowedOrigins, u)
			}
		}
	}

	var loadErrs []error
	hashMemory, err := getUint("PASSWORD_HASH_MEMORY", 64*1024, 32)
	loadErrs = append(loadErrs, err)
	hashTime, err := getUint("PASSWORD_HASH_TIME", 3, 32)
	loadErrs = append(loadErrs, err)
	hashThreads, err := getUint("PASSWORD_HASH_THREADS", 2, 8)
	loadErrs = append(loadErrs, err)

	return &Config{
		MongoURI:      getEnv("MONGODB_URI", getEnv("MONGO_URI", "mongodb://localhost:27017/accountd")),
		MongoDatabase: getEnv("MONGODB_DATABASE", ""),
		RedisURI:      getEnv("REDIS_URI", "redis://localhost:6379/0"),
		Port:          getEnv("PORT", "4000"),
		Environment:   strings.ToLower(strings.TrimSpace(getEnv("ENV", "development"))),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		TokenExpiry: getDuration("JWT_EXPIRY", DefaultTokenExpiry),

		ResetTokenTTL:  getDuration("RESET_TOKEN_TTL", DefaultResetTokenTTL),
		ResetURLBase:   strings.TrimRight(getEnv("RESET_URL_BASE", "http://localhost:3000/reset-password"), "/"),
		RevealUnknown:  getBool("FORGET_PASSWORD_REVEAL_UNKNOWN", true),
		HashMemory:     uint32(hashMemory),
		HashTime:       uint32(hashTime),
		HashThreads:    uint8(hashThreads),
		AllowedOrigins: allowedOrigins,
		AllowedHost:    getEnv("HOST", ""),

		MailHost:     getEnv("MAIL_HOST", ""),
		MailPort:     getInt("MAIL_PORT", 587),
		MailUser:     getEnv("MAIL_USER", ""),
		MailPassword: getEnv("MAIL_PASSWORD", ""),
		MailFrom:     getEnv("MAIL_FROM", "no-reply@localhost"),

		CloudinaryName:      getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		UploadFolder:        getEnv("UPLOAD_FOLDER", "accountd/profiles"),

		loadErrs: loadErrs,
	}
}

// Validate fails fast on settings the service cannot start without.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.loadErrs...)
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.TokenExpiry <= 0 {
		errs = append(errs, fmt.Errorf("JWT_EXPIRY must be positive, got %s", c.TokenExpiry))
	}
	if c.ResetTokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("RESET_TOKEN_TTL must be positive, got %s", c.ResetTokenTTL))
	}
	if c.MongoURI == "" {
		errs = append(errs, errors.New("MONGODB_URI is required"))
	}
	if c.HashMemory == 0 || c.HashTime == 0 || c.HashThreads == 0 {
		errs = append(errs, errors.New("password hash parameters must be non-zero"))
	}
	return errors.Join(errs...)
}

func (c *Config) TokenConfig() TokenConfig {
	return TokenConfig{Secret: c.JWTSecret, Expiry: c.TokenExpiry}
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// UsesRedisLimiter reports whether requests are limited through Redis.
// Production uses the in-process per-IP limiter instead.
func (c *Config) UsesRedisLimiter() bool {
	return !c.IsProduction()
}

// MailEnabled reports whether SMTP delivery is configured.
func (c *Config) MailEnabled() bool {
	return c.MailHost != ""
}

func (c *Config) CloudinaryEnabled() bool {
	return c.CloudinaryName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}

func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return -1
	}
	return d
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getUint parses an unsigned integer that must fit in bits.
func getUint(key string, defaultValue uint64, bits int) (uint64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, bits)
	if err != nil {
		return defaultValue, fmt.Errorf("%s must be an unsigned %d-bit integer, got %q", key, bits, value)
	}
	return n, nil
}

func getBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}
