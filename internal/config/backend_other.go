//go:build !darwin

package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

func defaultDataDir() string {
	dir := xdgDir("XDG_DATA_HOME", ".local", "share")
	if dir == "" {
		return "sitecraft-data"
	}
	return filepath.Join(dir, "sitecraft")
}

func configFilePath() string {
	dir := xdgDir("XDG_CONFIG_HOME", ".config")
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "sitecraft", "config.yaml")
}

func apiKeyHint() string {
	return " or " + secretsFilePath() + " (gemini_api_key: ...)"
}

// yamlBackend keeps settings in a YAML document where dotted keys map onto
// nested sections:
//
//	server:
//	  port: 4100
//	gemini:
//	  model: gemini-2.5-flash
type yamlBackend struct {
	path string
	root map[string]any
}

func newPlatformBackend() ConfigBackend {
	return openYAMLBackend(configFilePath())
}

func openYAMLBackend(path string) *yamlBackend {
	b := &yamlBackend{path: path, root: map[string]any{}}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		slog.Warn("could not read config file, using defaults", "path", path, "error", err)
	default:
		if err := yaml.Unmarshal(data, &b.root); err != nil {
			slog.Warn("could not parse config file, using defaults", "path", path, "error", err)
			b.root = map[string]any{}
		}
		if b.root == nil {
			b.root = map[string]any{}
		}
	}
	return b
}

func (b *yamlBackend) lookup(key string) (any, bool) {
	parts := strings.Split(key, ".")
	node := b.root
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			return nil, false
		}
		node = next
	}
	v, ok := node[parts[len(parts)-1]]
	return v, ok && v != nil
}

func (b *yamlBackend) section(key string, create bool) (map[string]any, string) {
	parts := strings.Split(key, ".")
	node := b.root
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			if !create {
				return nil, ""
			}
			next = map[string]any{}
			node[p] = next
		}
		node = next
	}
	return node, parts[len(parts)-1]
}

func (b *yamlBackend) GetString(key string) (string, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return "", false, nil
	}
	switch val := v.(type) {
	case string:
		return val, true, nil
	case map[string]any, []any:
		return "", true, fmt.Errorf("%s is a section, not a value", key)
	default:
		return fmt.Sprint(val), true, nil
	}
}

func (b *yamlBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int:
		return val, true, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid integer for %s: %v", key, val)
	}
}

func (b *yamlBackend) SetString(key, val string) error {
	node, leaf := b.section(key, true)
	node[leaf] = val
	return b.save()
}

func (b *yamlBackend) SetInt(key string, val int) error {
	node, leaf := b.section(key, true)
	node[leaf] = val
	return b.save()
}

func (b *yamlBackend) Delete(key string) error {
	node, leaf := b.section(key, false)
	if node == nil {
		return nil
	}
	delete(node, leaf)
	return b.save()
}

func (b *yamlBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(b.root)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return os.Rename(tmp, b.path)
}
