//go:build !darwin

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

func secretsFilePath() string {
	dir := xdgDir("XDG_DATA_HOME", ".local", "share")
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "sitecraft", "secrets.yaml")
}

// keychainExec reads a secret from the secrets file, a flat YAML map of
// account names. The service is implied by the file location.
func keychainExec(_, account string) ([]byte, error) {
	path := secretsFilePath()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("no secrets file: %w", err)
	}
	if info, err := os.Stat(path); err == nil && info.Mode().Perm()&0o077 != 0 {
		return nil, fmt.Errorf("%s is readable by other users; chmod 600 it", path)
	}
	var secrets map[string]string
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	val, ok := secrets[account]
	if !ok {
		return nil, fmt.Errorf("%s not set in %s", account, path)
	}
	return []byte(val), nil
}
