// Package config holds the command line configuration shared by the voter
// and authority commands. Every flag can also be set through an environment
// variable named EnvPrefix plus the flag name in upper case with dashes
// turned into underscores, e.g. BLINDVOTE_API_URL. Flags given on the
// command line take precedence.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/vocdoni/blindvote/log"
	"go.vocdoni.io/dvote/db"
)

// EnvPrefix is the prefix of the environment variables read by ParseFlags.
const EnvPrefix = "BLINDVOTE_"

const (
	APIURLKey     = "api-url"
	DataDirKey    = "datadir"
	DBTypeKey     = "db-type"
	LogLevelKey   = "log-level"
	LogOutputKey  = "log-output"
	RetriesKey    = "retries"
	TimeoutKey    = "timeout"
	KeyFileKey    = "keyfile"
	HostKey       = "host"
	PortKey       = "port"
	AuthorityKey  = "authority-keys"
	DevKey        = "dev"
	PassphraseKey = "passphrase"
)

// Config is the parsed configuration.
type Config struct {
	// APIURL is the election authority base URL.
	APIURL string
	// DataDir holds the database and the voter key file.
	DataDir string
	DBType  string

	LogLevel  string
	LogOutput string

	Retries int
	Timeout time.Duration

	// KeyFile is the encrypted voter signing key, relative paths are
	// resolved under DataDir.
	KeyFile string
	// Passphrase unlocks KeyFile. Prefer the environment variable over the
	// flag, which shows up in the process list.
	Passphrase string

	// Authority server settings.
	Host          string
	Port          int
	AuthorityKeys string
	Dev           bool
}

// DefaultConfig returns the configuration used when no flag is given.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		APIURL:    "http://localhost:9090",
		DataDir:   filepath.Join(home, ".blindvote"),
		DBType:    db.TypePebble,
		LogLevel:  log.LogLevelInfo,
		LogOutput: "stderr",
		Retries:   3,
		Timeout:   10 * time.Second,
		KeyFile:   "voter.key",
		Host:      "0.0.0.0",
		Port:      9090,
	}
}

// AddFlags registers the flags on the given set.
func AddFlags(flags *pflag.FlagSet) {
	d := DefaultConfig()
	flags.String(APIURLKey, d.APIURL, "election authority API URL")
	flags.String(DataDirKey, d.DataDir, "directory for the database and the voter key")
	flags.String(DBTypeKey, d.DBType, "database backend")
	flags.String(LogLevelKey, d.LogLevel, "log level (debug, info, warn, error)")
	flags.String(LogOutputKey, d.LogOutput, "log output (stdout, stderr or a file path)")
	flags.Int(RetriesKey, d.Retries, "attempts for requests failing at the transport level")
	flags.Duration(TimeoutKey, d.Timeout, "HTTP request timeout")
	flags.String(KeyFileKey, d.KeyFile, "encrypted voter signing key file")
	flags.String(PassphraseKey, "", "voter key passphrase")
	flags.String(HostKey, d.Host, "authority API listen host")
	flags.Int(PortKey, d.Port, "authority API listen port")
	flags.String(AuthorityKey, "", "authority key file with the RSA and Paillier keys")
	flags.Bool(DevKey, false, "enable development endpoints")
}

// EnvName returns the environment variable of a flag.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// applyEnv sets every flag not given on the command line from its
// environment variable.
func applyEnv(flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed {
			return
		}
		v, ok := os.LookupEnv(EnvName(f.Name))
		if !ok {
			return
		}
		if serr := flags.Set(f.Name, v); serr != nil {
			err = fmt.Errorf("invalid %s: %w", EnvName(f.Name), serr)
		}
	})
	return err
}

// ParseFlags parses args, applies the environment and returns the
// validated configuration.
func ParseFlags(flags *pflag.FlagSet, args []string) (*Config, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if err := applyEnv(flags); err != nil {
		return nil, err
	}

	c := &Config{}
	var err error
	strs := []struct {
		key string
		dst *string
	}{
		{APIURLKey, &c.APIURL},
		{DataDirKey, &c.DataDir},
		{DBTypeKey, &c.DBType},
		{LogLevelKey, &c.LogLevel},
		{LogOutputKey, &c.LogOutput},
		{KeyFileKey, &c.KeyFile},
		{PassphraseKey, &c.Passphrase},
		{HostKey, &c.Host},
		{AuthorityKey, &c.AuthorityKeys},
	}
	for _, s := range strs {
		if *s.dst, err = flags.GetString(s.key); err != nil {
			return nil, err
		}
	}
	if c.Retries, err = flags.GetInt(RetriesKey); err != nil {
		return nil, err
	}
	if c.Timeout, err = flags.GetDuration(TimeoutKey); err != nil {
		return nil, err
	}
	if c.Port, err = flags.GetInt(PortKey); err != nil {
		return nil, err
	}
	if c.Dev, err = flags.GetBool(DevKey); err != nil {
		return nil, err
	}
	if c.LogLevel, err = log.ParseLevel(c.LogLevel); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the values that have a restricted domain.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API URL %q", c.APIURL)
	}
	if c.DataDir == "" {
		return fmt.Errorf("missing data directory")
	}
	if c.DBType == "" {
		return fmt.Errorf("missing database type")
	}
	if c.Retries < 1 {
		return fmt.Errorf("retries must be at least 1")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// Path resolves p under DataDir unless it is absolute.
func (c *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

// KeyFilePath returns the resolved voter key file path.
func (c *Config) KeyFilePath() string {
	return c.Path(c.KeyFile)
}

// DBPath returns the database directory of the given role.
func (c *Config) DBPath(role string) string {
	return filepath.Join(c.DataDir, role+"db")
}
