package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file on top of the defaults, validates
// it, and returns the result. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(md); err != nil {
		return nil, err
	}

	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		normalize(cfg)
		return cfg, nil
	}

	return Load(path)
}

// Overrides carries values set on the command line. Pointer fields are nil
// when the flag was not given.
type Overrides struct {
	ConfigPath        string
	VaultPath         *string
	DestinationFolder *string
	LogLevel          *string
}

// Resolve applies defaults, then the config file, then environment variables,
// then CLI flags, and validates the result. It returns the resolved config
// and the config file path that was consulted.
func Resolve(env EnvOverrides, cli Overrides) (*Config, string, error) {
	path := DefaultConfigPath()
	if env.ConfigPath != "" {
		path = env.ConfigPath
	}
	if cli.ConfigPath != "" {
		path = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, path, err
	}

	env.Apply(cfg)

	if cli.VaultPath != nil {
		cfg.Inbox.VaultPath = *cli.VaultPath
	}
	if cli.DestinationFolder != nil {
		cfg.Inbox.DestinationFolder = *cli.DestinationFolder
	}
	if cli.LogLevel != nil {
		cfg.Logging.Level = *cli.LogLevel
	}

	normalize(cfg)

	if err := Validate(cfg); err != nil {
		return nil, path, fmt.Errorf("config validation: %w", err)
	}

	return cfg, path, nil
}

func normalize(cfg *Config) {
	cfg.Inbox.VaultPath = expandTilde(cfg.Inbox.VaultPath)
	cfg.Inbox.StateFile = expandTilde(cfg.Inbox.StateFile)
	cfg.Inbox.HistoryDB = expandTilde(cfg.Inbox.HistoryDB)
	cfg.Auth.GatewayURL = strings.TrimRight(cfg.Auth.GatewayURL, "/")
}

func checkUnknownKeys(md toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}
	sort.Strings(keys)

	errs := make([]error, 0, len(keys))
	for _, k := range keys {
		errs = append(errs, fmt.Errorf("unknown config key %q", k))
	}

	return errors.Join(errs...)
}
