package commands

import (
	"github.com/spf13/cobra"
	"github.com/teranos/attackls/am"
	"github.com/teranos/attackls/attack"
	"github.com/teranos/attackls/errors"
	"github.com/teranos/attackls/lsp"
)

// loadConfig returns a copy of the merged configuration with the --dataset flag applied
func loadConfig(cmd *cobra.Command) (am.Config, error) {
	loaded, err := am.Load()
	if err != nil {
		return am.Config{}, errors.Wrap(err, "failed to load config")
	}
	cfg := *loaded

	if path, _ := cmd.Flags().GetString("dataset"); path != "" {
		cfg.Dataset.Path = path
	}
	return cfg, nil
}

// newService loads the dataset named by cfg and builds the lookup service over it
func newService(cfg am.Config) (*lsp.Service, error) {
	settings, err := lsp.SettingsFromConfig(cfg.Attack)
	if err != nil {
		return nil, err
	}

	idx, err := attack.LoadFile(cfg.Dataset.Path)
	if err != nil {
		return nil, err
	}
	return lsp.NewService(idx, settings), nil
}

// serviceFromFlags is loadConfig followed by newService
func serviceFromFlags(cmd *cobra.Command) (*lsp.Service, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newService(cfg)
}
