package main

import (
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/dcshock/imgpipe/config"
	"github.com/dcshock/imgpipe/repro"
)

func newRunCmd(a *app) *cobra.Command {
	var path, chainName string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fit and evaluate a chain defined in a YAML config on random images",
		Long: `Reads a chains file (chains: {name: {stages: [...], data: {...}}}), builds
the named chain and runs it like the repro command. The chain must produce
the LabelKey, PredictedLabel and PredictedLabelValue columns.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrap(err, "read config")
			}
			cfg, err := selectChain(data, chainName)
			if err != nil {
				return err
			}
			chain, err := config.BuildChain(config.DefaultRegistry(), cfg)
			if err != nil {
				return err
			}
			obs, err := config.BuildObserver(cfg, &config.BuildOptions{ObserverRegistry: a.observerRegistry()})
			if err != nil {
				return err
			}
			if obs == nil {
				obs = a.observer()
			}
			s := repro.Scenario{
				Name:      cfg.Name,
				Images:    cfg.Data.Images,
				ImageSize: cfg.Data.Size,
				ResizeTo:  cfg.Data.Size,
				Unguarded: cfg.Unguarded || a.settings.Unguarded,
				Seed:      cfg.Data.Seed,
			}
			r, err := repro.Run(cmd.Context(), s, &repro.Options{Logger: a.log, Observer: obs, Chain: chain})
			if err != nil {
				return err
			}
			return printReport(r)
		},
	}
	cmd.Flags().StringVar(&path, "config", "", "chains YAML file")
	cmd.Flags().StringVar(&chainName, "chain", "", "chain to run; may be omitted when the file defines one chain")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func selectChain(data []byte, name string) (*config.ChainConfig, error) {
	multi, err := config.ParseMultiChainConfig(data)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if len(multi.Chains) != 1 {
			return nil, errors.Newf("--chain required, config defines: %s", strings.Join(chainNames(multi), ", "))
		}
		for n := range multi.Chains {
			name = n
		}
	}
	cfg, ok := multi.Chains[name]
	if !ok {
		return nil, errors.Newf("chain %q not defined, config defines: %s", name, strings.Join(chainNames(multi), ", "))
	}
	if cfg.Name == "" {
		cfg.Name = name
	}
	return &cfg, nil
}

func chainNames(m *config.MultiChainConfig) []string {
	names := make([]string, 0, len(m.Chains))
	for n := range m.Chains {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
