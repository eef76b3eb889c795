package config

import (
	"fmt"
	"os"
)

// Where a setting's effective value came from.
const (
	SourceDefault = "default"
	SourceFile    = "config"
	SourceEnv     = "env"
	SourceSecret  = "secret store"
)

// KeyInfo is one row of "sitecraft config show".
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Source string
}

// Describe loads the configuration and reports every key with its
// effective value and where it came from. Secrets are masked.
func Describe() ([]KeyInfo, error) {
	return describe(newPlatformBackend(), keychainReader{})
}

func describe(b ConfigBackend, kc keychain) ([]KeyInfo, error) {
	cfg, err := loadWith(b, kc)
	if err != nil {
		return nil, err
	}

	out := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		info := KeyInfo{Key: s.key, EnvVar: s.env, Value: fmt.Sprint(s.extract(cfg)), Source: SourceDefault}
		switch {
		case os.Getenv(s.env) != "":
			info.Source = SourceEnv
		case s.secret:
			if info.Value != "" {
				info.Source = SourceSecret
			}
		case stored(b, s):
			info.Source = SourceFile
		}
		if s.secret {
			info.Value = mask(info.Value)
		}
		out = append(out, info)
	}
	return out, nil
}

func stored(b ConfigBackend, s keySpec) bool {
	if s.typ == kInt {
		_, ok, _ := b.GetInt(s.key)
		return ok
	}
	_, ok, _ := b.GetString(s.key)
	return ok
}

func mask(v string) string {
	if v == "" {
		return "(unset)"
	}
	return "(set)"
}

// SetKey validates value for key and stores it in the platform backend.
func SetKey(key, value string) error {
	return setKey(newPlatformBackend(), key, value)
}

func setKey(b ConfigBackend, key, value string) error {
	s, err := settable(key)
	if err != nil {
		return err
	}
	v, err := s.parse(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if s.typ == kInt {
		return b.SetInt(key, v.(int))
	}
	return b.SetString(key, value)
}

// UnsetKey removes key from the platform backend so its default applies.
func UnsetKey(key string) error {
	return unsetKey(newPlatformBackend(), key)
}

func unsetKey(b ConfigBackend, key string) error {
	if _, err := settable(key); err != nil {
		return err
	}
	return b.Delete(key)
}

func settable(key string) (keySpec, error) {
	s, ok := specFor(key)
	if !ok {
		return keySpec{}, fmt.Errorf("unknown config key %q", key)
	}
	if s.secret {
		return keySpec{}, fmt.Errorf("%s is a secret; set it with %s or the secret store", key, s.env)
	}
	return s, nil
}

// ValidKeys returns the keys "config set" accepts.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
