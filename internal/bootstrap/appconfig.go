// Package bootstrap loads the operator-supplied control-plane configuration
// file (§6 of the spec: database connection list, JWT secret, bot token)
// and parses the `-p/-a/-d/-y` CLI flags.
package bootstrap

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DatabaseEntry is one element of the `database` array in the config file.
type DatabaseEntry struct {
	Type string        `yaml:"type"`
	Data DatabaseCreds `yaml:"data"`
}

// DatabaseCreds carries the DB connection fields for one launch type.
type DatabaseCreds struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBDNS    string `yaml:"db_dns"`
}

// AppConfig is the top-level shape of the config file named by -d.
type AppConfig struct {
	ClientVersion int             `yaml:"client_version"`
	ServerVersion int             `yaml:"server_version"`
	JWT           string          `yaml:"jwt"`
	BotToken      string          `yaml:"bot_token"`
	Database      []DatabaseEntry `yaml:"database"`
}

// Flags holds the parsed CLI options.
type Flags struct {
	Port       string
	IP         string
	ConfigPath string
	LaunchType string
}

// ParseFlags parses -p, -a, -d, -y.
func ParseFlags(args []string) (Flags, error) {
	fs := flag.NewFlagSet("binance-monitor", flag.ContinueOnError)
	port := fs.String("p", "8080", "listen port")
	ip := fs.String("a", "0.0.0.0", "listen address")
	configPath := fs.String("d", "", "path to config file")
	launchType := fs.String("y", "development", "launch type, must match one database.type entry")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if *configPath == "" {
		return Flags{}, fmt.Errorf("missing required -d config_path")
	}
	return Flags{Port: *port, IP: *ip, ConfigPath: *configPath, LaunchType: *launchType}, nil
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return &cfg, nil
}

// SelectDatabase finds the database entry whose type matches launchType.
func (c *AppConfig) SelectDatabase(launchType string) (DatabaseCreds, error) {
	for _, entry := range c.Database {
		if entry.Type == launchType {
			return entry.Data, nil
		}
	}
	return DatabaseCreds{}, fmt.Errorf("no database config for launch type %q", launchType)
}
