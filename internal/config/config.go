package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/netip"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/alexjbarnes/txmon-auth/internal/errors"
	"github.com/alexjbarnes/txmon-auth/internal/logging"
)

const (
	minSigningKeyLen = 32
	minHashIter      = 10_000

	RefreshStoreMemory = "memory"
	RefreshStoreRedis  = "redis"
)

// Config holds all environment-based configuration for txmon-auth.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// TrustedProxies lists the reverse proxies (IPs or CIDRs, comma
	// separated) whose X-Forwarded-For and X-Real-IP headers are
	// honoured. Empty means the connection address is always used.
	TrustedProxies string `env:"TRUSTED_PROXIES"`

	// PublicURL is the externally visible base URL advertised in the
	// authorization server metadata. Defaults to http://localhost<ListenAddr>.
	PublicURL string `env:"PUBLIC_URL"`

	// JWT settings. The signing key is shared with every API instance
	// that validates tokens.
	SigningKey         string `env:"JWT_SIGNING_KEY"`
	Issuer             string `env:"JWT_ISSUER"`
	Audience           string `env:"JWT_AUDIENCE"`
	AccessTokenMinutes int    `env:"JWT_ACCESS_TOKEN_MINUTES" envDefault:"15"`
	RefreshTokenDays   int    `env:"JWT_REFRESH_TOKEN_DAYS" envDefault:"7"`
	ClockSkewMinutes   int    `env:"JWT_CLOCK_SKEW_MINUTES" envDefault:"5"`
	HashIterations     int    `env:"HASH_ITERATIONS" envDefault:"100000"`

	// Refresh token storage: "memory" for a single instance, "redis" to
	// share tokens between instances.
	RefreshStore string `env:"REFRESH_STORE" envDefault:"memory"`
	RedisURL     string `env:"REDIS_URL"`

	// StatePath is the bbolt file holding registered clients. Empty
	// keeps clients in memory only.
	StatePath string `env:"STATE_PATH"`

	// SeedFile is an optional YAML file of users and clients created at
	// startup.
	SeedFile string `env:"SEED_FILE"`

	// OAuthClients seeds clients from the environment.
	// Format: "id:secret:scope scope,id2:secret2:scope"
	OAuthClients string `env:"OAUTH_CLIENTS"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the signing key to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
// Every returned error wraps ErrConfiguration.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing config: %w", apperrors.ErrConfiguration, err)
	}

	if cfg.PublicURL == "" {
		host := cfg.ListenAddr
		if strings.HasPrefix(host, ":") {
			host = "localhost" + host
		}

		cfg.PublicURL = "http://" + host
	}

	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrConfiguration, err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.SigningKey) < minSigningKeyLen {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least %d bytes", minSigningKeyLen)
	}

	if strings.TrimSpace(c.Issuer) == "" {
		return errors.New("JWT_ISSUER is required")
	}

	if strings.TrimSpace(c.Audience) == "" {
		return errors.New("JWT_AUDIENCE is required")
	}

	if err := inRange("JWT_ACCESS_TOKEN_MINUTES", c.AccessTokenMinutes, 1, 120); err != nil {
		return err
	}

	if err := inRange("JWT_REFRESH_TOKEN_DAYS", c.RefreshTokenDays, 1, 30); err != nil {
		return err
	}

	if err := inRange("JWT_CLOCK_SKEW_MINUTES", c.ClockSkewMinutes, 1, 30); err != nil {
		return err
	}

	if c.HashIterations < minHashIter {
		return fmt.Errorf("HASH_ITERATIONS must be at least %d", minHashIter)
	}

	if _, _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}

	switch c.RefreshStore {
	case RefreshStoreMemory:
	case RefreshStoreRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required when REFRESH_STORE is redis")
		}
	default:
		return fmt.Errorf("REFRESH_STORE must be %q or %q", RefreshStoreMemory, RefreshStoreRedis)
	}

	if _, err := c.ParseOAuthClients(); err != nil {
		return err
	}

	if _, err := c.ParseTrustedProxies(); err != nil {
		return err
	}

	return nil
}

func inRange(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, lo, hi, v)
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// AccessTTL is the access token lifetime.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenMinutes) * time.Minute
}

// RefreshTTL is the refresh token lifetime.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenDays) * 24 * time.Hour
}

// ClockSkew is the tolerance applied to token time claims.
func (c *Config) ClockSkew() time.Duration {
	return time.Duration(c.ClockSkewMinutes) * time.Minute
}

// SeedClient is a client to register at startup. The secret is
// plaintext and is hashed before storage.
type SeedClient struct {
	ClientID    string   `yaml:"client_id"`
	Secret      string   `yaml:"secret"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Scopes      []string `yaml:"scopes"`
}

// SeedUser is a user to create at startup.
type SeedUser struct {
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	Email     string `yaml:"email"`
	Role      string `yaml:"role"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Disabled  bool   `yaml:"disabled"`
}

// Seed is the SEED_FILE document.
type Seed struct {
	Users   []SeedUser   `yaml:"users"`
	Clients []SeedClient `yaml:"clients"`
}

// ParseOAuthClients parses the OAUTH_CLIENTS string.
// Format: "client1:secret1:read write,client2:secret2"
// The scope part is optional and space separated.
func (c *Config) ParseOAuthClients() ([]SeedClient, error) {
	if c.OAuthClients == "" {
		return nil, nil
	}

	seen := make(map[string]struct{})

	var clients []SeedClient

	for _, entry := range strings.Split(c.OAuthClients, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.SplitN(entry, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid OAUTH_CLIENTS entry %d (missing ':')", len(clients)+1)
		}

		clientID, secret := parts[0], parts[1]
		if clientID == "" || secret == "" {
			return nil, fmt.Errorf("empty client_id or secret in OAUTH_CLIENTS entry %d", len(clients)+1)
		}

		if _, dup := seen[clientID]; dup {
			return nil, fmt.Errorf("duplicate client_id %q in OAUTH_CLIENTS", clientID)
		}

		seen[clientID] = struct{}{}

		sc := SeedClient{ClientID: clientID, Secret: secret, Name: clientID}
		if len(parts) == 3 {
			sc.Scopes = strings.Fields(parts[2])
		}

		clients = append(clients, sc)
	}

	return clients, nil
}

// ParseTrustedProxies parses TRUSTED_PROXIES. A bare address is
// treated as a single-host prefix.
func (c *Config) ParseTrustedProxies() ([]netip.Prefix, error) {
	var out []netip.Prefix

	for _, entry := range strings.Split(c.TrustedProxies, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: invalid prefix %q", entry)
			}

			out = append(out, p.Masked())

			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: invalid address %q", entry)
		}

		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}

	return out, nil
}

// LoadSeed reads a seed document. Unknown keys are rejected so typos
// do not silently drop users or clients.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading seed file: %w", apperrors.ErrConfiguration, err)
	}

	return parseSeed(data)
}

func parseSeed(data []byte) (*Seed, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var seed Seed
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parsing seed file: %w", apperrors.ErrConfiguration, err)
	}

	for i, u := range seed.Users {
		if strings.TrimSpace(u.Username) == "" || u.Password == "" {
			return nil, fmt.Errorf("%w: seed user %d needs username and password", apperrors.ErrConfiguration, i+1)
		}
	}

	for i, c := range seed.Clients {
		if strings.TrimSpace(c.ClientID) == "" || c.Secret == "" {
			return nil, fmt.Errorf("%w: seed client %d needs client_id and secret", apperrors.ErrConfiguration, i+1)
		}
	}

	return &seed, nil
}
