// Package config reads the client's settings from flags, falling back to
// the environment (a .env file is loaded by the binaries before Parse).
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/DoyleJ11/hacksail-client/internal/passkey"
)

type Config struct {
	APIURL      string
	ChannelURL  string
	StateDB     string
	Listen      string
	Revalidate  time.Duration
	Debug       bool
	EmailDomain string

	JudgePasskeys  map[string]string
	SectorPasskeys map[string]string
	PasskeyTTL     time.Duration

	CloudinaryCloud  string
	CloudinaryPreset string

	// Args is whatever follows the flags, e.g. a hackadmin subcommand.
	Args []string
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := env(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// Parse reads args (without the program name). Flags win over env.
func Parse(name string, args []string) (Config, error) {
	var cfg Config

	revalidate, err := envDuration("HACKSAIL_REVALIDATE", 0)
	if err != nil {
		return Config{}, err
	}
	ttl, err := envDuration("HACKSAIL_PASSKEY_TTL", passkey.DefaultTTL)
	if err != nil {
		return Config{}, err
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.APIURL, "api", env("HACKSAIL_API_URL", "http://localhost:5000/Hack"), "backend base URL")
	fs.StringVar(&cfg.ChannelURL, "channel", env("HACKSAIL_CHANNEL_URL", "ws://localhost:5000/ws"), "event channel URL")
	fs.StringVar(&cfg.StateDB, "db", env("HACKSAIL_STATE_DB", "hacksail.db"), "credential database path")
	fs.StringVar(&cfg.Listen, "listen", env("HACKSAIL_LISTEN", "127.0.0.1:8088"), "local UI address")
	fs.DurationVar(&cfg.Revalidate, "revalidate", revalidate, "re-run the login handshake this often (0 disables)")
	fs.BoolVar(&cfg.Debug, "debug", false, "development logging")
	fs.StringVar(&cfg.EmailDomain, "email-domain", env("HACKSAIL_ALLOWED_EMAIL_DOMAIN", "@klu.ac.in"), "required lead email suffix")
	fs.DurationVar(&cfg.PasskeyTTL, "passkey-ttl", ttl, "staff session lifetime")
	fs.StringVar(&cfg.CloudinaryCloud, "cloudinary-cloud", env("CLOUDINARY_CLOUD", ""), "Cloudinary cloud name")
	fs.StringVar(&cfg.CloudinaryPreset, "cloudinary-preset", env("CLOUDINARY_PRESET", "Team_images"), "Cloudinary unsigned preset")
	judges := fs.String("judge-passkeys", env("HACKSAIL_JUDGE_PASSKEYS", ""), "name:bcrypthash,... for judges")
	sectors := fs.String("sector-passkeys", env("HACKSAIL_SECTOR_PASSKEYS", ""), "name:bcrypthash,... for sectors")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Args = fs.Args()

	if cfg.JudgePasskeys, err = passkey.ParseHashes(*judges); err != nil {
		return Config{}, fmt.Errorf("judge passkeys: %w", err)
	}
	if cfg.SectorPasskeys, err = passkey.ParseHashes(*sectors); err != nil {
		return Config{}, fmt.Errorf("sector passkeys: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://"):
		return errors.New("api URL must be http or https")
	case !strings.HasPrefix(c.ChannelURL, "ws://") && !strings.HasPrefix(c.ChannelURL, "wss://"):
		return errors.New("channel URL must be ws or wss")
	case c.Revalidate < 0:
		return errors.New("revalidate must not be negative")
	case c.StateDB == "":
		return errors.New("state db path required")
	}
	return nil
}
