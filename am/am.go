// Package am ("I am") is the attackls configuration layer.
//
// Values cascade from defaults through /etc/attackls/am.toml,
// ~/.attackls/am.toml and the nearest project am.toml, with ATTACKLS_*
// environment variables taking precedence over every file.
package am

// Config represents the attackls configuration
type Config struct {
	Attack  AttackConfig  `mapstructure:"attack" toml:"attack" json:"attack" yaml:"attack"`
	Dataset DatasetConfig `mapstructure:"dataset" toml:"dataset" json:"dataset" yaml:"dataset"`
	Server  ServerConfig  `mapstructure:"server" toml:"server" json:"server" yaml:"server"`
}

// AttackConfig controls how techniques are described and completed
type AttackConfig struct {
	Description           string `mapstructure:"description" toml:"description" json:"description" yaml:"description"`                                          // short, long or link
	CompletionFormat      string `mapstructure:"completion_format" toml:"completion_format" json:"completion_format" yaml:"completion_format"`                  // id, name, link, fullname, id-name, id-fullname
	MinTermLength         int    `mapstructure:"min_term_length" toml:"min_term_length" json:"min_term_length" yaml:"min_term_length"`                          // shorter terms get the full candidate set
	MaxDescriptionMatches int    `mapstructure:"max_description_matches" toml:"max_description_matches" json:"max_description_matches" yaml:"max_description_matches"` // more matches than this yields none
	Debug                 bool   `mapstructure:"debug" toml:"debug" json:"debug" yaml:"debug"`
}

// DatasetConfig locates the STIX bundle
type DatasetConfig struct {
	Path string `mapstructure:"path" toml:"path" json:"path" yaml:"path"`
}

// ServerConfig configures the language server transports
type ServerConfig struct {
	Transport      string   `mapstructure:"transport" toml:"transport" json:"transport" yaml:"transport"` // stdio, tcp or websocket
	Address        string   `mapstructure:"address" toml:"address" json:"address" yaml:"address"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
	RateLimit      float64  `mapstructure:"rate_limit" toml:"rate_limit" json:"rate_limit" yaml:"rate_limit"` // HTTP API requests per second, 0 = unlimited
	RateBurst      int      `mapstructure:"rate_burst" toml:"rate_burst" json:"rate_burst" yaml:"rate_burst"`
}

// Transports
const (
	TransportStdio     = "stdio"
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// Defaults
const (
	DefaultDescription           = "short"
	DefaultCompletionFormat      = "id-name"
	DefaultMinTermLength         = 5
	DefaultMaxDescriptionMatches = 3
	DefaultDatasetPath           = "enterprise-attack.json"
	DefaultAddress               = "127.0.0.1:7998"
	DefaultRateBurst             = 20
)

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// EnvPrefix prefixes every environment variable override, e.g. ATTACKLS_DATASET_PATH
const EnvPrefix = "ATTACKLS"
