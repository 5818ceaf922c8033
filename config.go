package atmosphere

import (
	"path/filepath"
	"strconv"
)

// Used to get set arbitrary config variables

var (
	// ConfigPath is the path in the config store
	ConfigPath = "atmosphere/config/"
)

// GetConfig gets a config value
func (c *Context) GetConfig(key string) (string, error) {
	value, err := c.kv.Get(filepath.Join(ConfigPath, key))
	if err != nil {
		return "", err
	}

	return string(value.Data), nil
}

// SetConfig sets a config value
func (c *Context) SetConfig(key, val string) error {
	return c.kv.Set(filepath.Join(ConfigPath, key), val)
}

// ToBool parses a config value as a bool, defaulting to false
func ToBool(val string) bool {
	b, err := strconv.ParseBool(val)
	return err == nil && b
}
