package nightly

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DBConfig is one environment's entry in dbconf.yml. The file is the same
// one goose reads, so the migration runner and the loader stay pointed at
// the same database.
type DBConfig struct {
	Driver string `yaml:"driver"`
	Open   string `yaml:"open"`
}

// DefaultDBConfig is the stock configuration used when no dbconf.yml
// exists.
func DefaultDBConfig() DBConfig {
	return DBConfig{Driver: "sqlite3", Open: "data.sqlite3"}
}

// LoadDBConfig reads the named environment from the dbconf.yml at path.
func LoadDBConfig(path, env string) (DBConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return DBConfig{}, err
	}
	var all map[string]DBConfig
	if err := yaml.Unmarshal(b, &all); err != nil {
		return DBConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg, ok := all[env]
	if !ok {
		return DBConfig{}, fmt.Errorf("dbconf %s: no environment %q", path, env)
	}
	return cfg, nil
}
