package config

// Settings is the platform store for non-secret config values, addressed by
// dotted keys ("server.port"). A missing key reports ok == false.
type Settings interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}
