// Package config loads the optional csa configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
)

// EnvPath names the environment variable consulted when no --config flag
// is given.
const EnvPath = "CSA_CONFIG"

// Config represents configuration for the csa tool
type Config struct {
	Debug       bool   `json:"debug,omitempty" jsonschema:"title=Debug,description=Enable debug logging"`
	NoColor     bool   `json:"noColor,omitempty" jsonschema:"title=No Color,description=Disable coloured output"`
	Decompiler  string `json:"decompiler,omitempty" jsonschema:"title=Decompiler,description=Path or name of the ilspycmd executable,default=ilspycmd"`
	OutputRoot  string `json:"outputRoot,omitempty" jsonschema:"title=Output Root,description=Directory under which decompiled projects are created"`
	Parallelism int    `json:"parallelism,omitempty" jsonschema:"title=Parallelism,description=Decompiler worker hint; 0 selects the number of CPUs minus one,minimum=0"`
	LogFile     string `json:"logFile,omitempty" jsonschema:"title=Log File,description=Write logs to this file instead of stderr"`
}

// Load reads the config file at path, or at $CSA_CONFIG when path is
// empty. With neither set it returns the zero Config.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Parallelism < 0 {
		return nil, fmt.Errorf("parse config %s: parallelism must not be negative", path)
	}
	if cfg.LogFile != "" && !filepath.IsAbs(cfg.LogFile) {
		cfg.LogFile = filepath.Join(filepath.Dir(path), cfg.LogFile)
	}
	return cfg, nil
}

// Schema returns the indented JSON schema of Config.
func Schema() ([]byte, error) {
	reflector := new(jsonschema.Reflector)
	bts, err := json.MarshalIndent(reflector.Reflect(&Config{}), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return bts, nil
}
