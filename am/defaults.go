package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("attack.description", DefaultDescription)
	v.SetDefault("attack.completion_format", DefaultCompletionFormat)
	v.SetDefault("attack.min_term_length", DefaultMinTermLength)
	v.SetDefault("attack.max_description_matches", DefaultMaxDescriptionMatches)
	v.SetDefault("attack.debug", false)

	v.SetDefault("dataset.path", DefaultDatasetPath)

	v.SetDefault("server.transport", TransportStdio)
	v.SetDefault("server.address", DefaultAddress)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
		"vscode-webview://",
	})
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", DefaultRateBurst)
}

// BindEnvVars binds keys whose environment names are not derivable from the key alone
func BindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("dataset.path", EnvPrefix+"_DATASET_PATH", EnvPrefix+"_DATASET")
	_ = v.BindEnv("attack.debug", EnvPrefix+"_ATTACK_DEBUG", EnvPrefix+"_DEBUG")
}
