package config

// ConfigBackend is the persistent store behind "sitecraft config". Keys are
// dotted names such as "server.port". ok is false when the key is unset.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
