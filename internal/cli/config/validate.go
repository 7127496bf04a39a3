package config

import (
	"fmt"
	"os"
	"strings"
)

// OutputModes lists the accepted values of the output setting.
var OutputModes = []string{"auto", "text", "markdown", "json"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !validOutput(c.Output) {
		return fmt.Errorf("invalid output %q\nHint: use one of %s", c.Output, strings.Join(OutputModes, ", "))
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	return nil
}

func validOutput(s string) bool {
	if s == "" {
		return true
	}
	for _, m := range OutputModes {
		if strings.EqualFold(s, m) {
			return true
		}
	}
	return false
}

// ValidateConfigDir checks that the config directory exists. Commands that
// only read saved maps do not need it.
func (c *Config) ValidateConfigDir() error {
	info, err := os.Stat(c.ConfigDir)
	if err != nil {
		return fmt.Errorf("config directory does not exist: %s\nHint: use --config-dir to point at the directory holding leaplineage.yaml", c.ConfigDir)
	}
	if !info.IsDir() {
		return fmt.Errorf("config directory is not a directory: %s", c.ConfigDir)
	}
	return nil
}
