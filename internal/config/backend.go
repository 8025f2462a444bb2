package config

// ConfigBackend abstracts persistent config storage. Environment variables
// are applied on top of whatever the backend provides.
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	GetList(key string) (val []string, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	SetList(key string, val []string) error
	Delete(key string) error
}
