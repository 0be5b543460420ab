package auth

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Supported signing algorithm names.
const (
	AlgorithmNone     = "none"
	AlgorithmHMAC256  = "hmac256"
	AlgorithmHMAC512  = "hmac512"
	AlgorithmECDSA256 = "ecdsa256"
)

const (
	defaultTokenExpiration    = 900000 * time.Millisecond
	defaultLoginMaxAttempts   = 10
	defaultLoginWindowMinutes = 480
	defaultIPMaxRequests      = 100
	defaultIPWindowSeconds    = 60
)

// KeystoreConfig points at the key container used by asymmetric algorithms.
type KeystoreConfig struct {
	Type     string
	Location string
	Password string
}

// KeyConfig selects a key inside a keystore.
type KeyConfig struct {
	Alias    string
	Password string
}

// Config is the immutable auth configuration loaded at process start.
type Config struct {
	Algorithm       string
	Issuer          string
	TokenExpiration time.Duration
	Secret          string
	Keystore        KeystoreConfig
	Key             KeyConfig

	LoginMaxAttempts int
	LoginWindow      time.Duration
	IPMaxRequests    int
	IPWindow         time.Duration
}

// LoadConfig reads the configuration from environment variables and
// validates it. A validation failure is fatal; the process must not start.
func LoadConfig() (Config, error) {
	cfg := Config{
		Algorithm:       strings.TrimSpace(os.Getenv("AUTHGATE_ALGORITHM")),
		Issuer:          strings.TrimSpace(os.Getenv("AUTHGATE_ISSUER")),
		TokenExpiration: defaultTokenExpiration,
		Secret:          os.Getenv("AUTHGATE_SECRET"),
		Keystore: KeystoreConfig{
			Type:     strings.TrimSpace(os.Getenv("AUTHGATE_KEYSTORE_TYPE")),
			Location: strings.TrimSpace(os.Getenv("AUTHGATE_KEYSTORE_LOCATION")),
			Password: os.Getenv("AUTHGATE_KEYSTORE_PASSWORD"),
		},
		Key: KeyConfig{
			Alias:    strings.TrimSpace(os.Getenv("AUTHGATE_KEY_ALIAS")),
			Password: os.Getenv("AUTHGATE_KEY_PASSWORD"),
		},
		LoginMaxAttempts: defaultLoginMaxAttempts,
		LoginWindow:      defaultLoginWindowMinutes * time.Minute,
		IPMaxRequests:    defaultIPMaxRequests,
		IPWindow:         defaultIPWindowSeconds * time.Second,
	}

	if raw := os.Getenv("AUTHGATE_TOKEN_EXPIRATION_MS"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%w: AUTHGATE_TOKEN_EXPIRATION_MS: %v", ErrConfig, err)
		}
		cfg.TokenExpiration = time.Duration(ms) * time.Millisecond
	}
	var err error
	if cfg.LoginMaxAttempts, err = intEnv("AUTHGATE_LOGIN_MAX_ATTEMPTS", cfg.LoginMaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.LoginWindow, err = durationEnv("AUTHGATE_LOGIN_WINDOW_MINUTES", time.Minute, cfg.LoginWindow); err != nil {
		return Config{}, err
	}
	if cfg.IPMaxRequests, err = intEnv("AUTHGATE_IP_MAX_REQUESTS", cfg.IPMaxRequests); err != nil {
		return Config{}, err
	}
	if cfg.IPWindow, err = durationEnv("AUTHGATE_IP_WINDOW_SECONDS", time.Second, cfg.IPWindow); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that exactly the fields required by the selected
// algorithm are present.
func (c Config) Validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("%w: issuer is required", ErrConfig)
	}
	if c.TokenExpiration <= 0 {
		return fmt.Errorf("%w: token expiration must be positive", ErrConfig)
	}
	switch c.Algorithm {
	case AlgorithmNone:
		// Insecure, for local testing only. Requires no material.
	case AlgorithmHMAC256, AlgorithmHMAC512:
		if strings.TrimSpace(c.Secret) == "" {
			return fmt.Errorf("%w: a secret is required for algorithm %s", ErrConfig, c.Algorithm)
		}
	case AlgorithmECDSA256:
		switch {
		case c.Keystore.Type == "":
			return fmt.Errorf("%w: keystore type is required for algorithm %s", ErrConfig, c.Algorithm)
		case c.Keystore.Location == "":
			return fmt.Errorf("%w: keystore location is required for algorithm %s", ErrConfig, c.Algorithm)
		case c.Keystore.Password == "":
			return fmt.Errorf("%w: keystore password is required for algorithm %s", ErrConfig, c.Algorithm)
		case c.Key.Alias == "":
			return fmt.Errorf("%w: key alias is required for algorithm %s", ErrConfig, c.Algorithm)
		case c.Key.Password == "":
			return fmt.Errorf("%w: key password is required for algorithm %s", ErrConfig, c.Algorithm)
		}
	case "":
		return fmt.Errorf("%w: algorithm is required", ErrConfig)
	default:
		return fmt.Errorf("%w: unsupported algorithm %q", ErrConfig, c.Algorithm)
	}
	if c.LoginMaxAttempts <= 0 || c.LoginWindow <= 0 {
		return fmt.Errorf("%w: login throttle limits must be positive", ErrConfig)
	}
	if c.IPMaxRequests <= 0 || c.IPWindow <= 0 {
		return fmt.Errorf("%w: ip throttle limits must be positive", ErrConfig)
	}
	return nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrConfig, name, err)
	}
	return v, nil
}

func durationEnv(name string, unit time.Duration, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrConfig, name, err)
	}
	return time.Duration(v) * unit, nil
}
