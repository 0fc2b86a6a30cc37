package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/jajabor-ai/tutor/pkg/config"
)

var version = "dev"

const defaultConfigPath = "tutor.yaml"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "tutor",
		Short:         "SEBA class 10 tutor: streaming answers with an answer cache",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to config file")

	load := func() (*config.Config, error) {
		return loadConfig(configPath, root.PersistentFlags().Changed("config"))
	}

	root.AddCommand(
		newServeCmd(load),
		newAskCmd(load),
		newCacheCmd(load),
		newCatalogCmd(load),
		newStatsCmd(load),
		newQuotaCmd(load),
		newAuditCmd(load),
		newMCPCmd(load),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type configLoader func() (*config.Config, error)

// loadConfig reads path. A missing default config file yields the defaults;
// a missing file named explicitly is an error.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return config.Default(), nil
		}
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
