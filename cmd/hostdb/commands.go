package main

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/yuriy-kovalchuk/hostdb/internal/config"
	"github.com/yuriy-kovalchuk/hostdb/internal/ipam"
	"github.com/yuriy-kovalchuk/hostdb/internal/reconcile"
	"github.com/yuriy-kovalchuk/hostdb/internal/zone"
)

type globalFlags struct {
	configPath   string
	providerPath string
}

func newRootCmd(zapOpts *zap.Options) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "hostdb",
		Short:         "Keep an IPAM in sync with hostdb zone files",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if zapOpts != nil {
				ctrl.SetLogger(zap.New(zap.UseFlagOptions(zapOpts)))
			}
		},
	}

	defaultConfig := os.Getenv("HOSTDB_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "configs/hostdb.yaml"
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", defaultConfig,
		"zone config file (env HOSTDB_CONFIG)")
	root.PersistentFlags().StringVar(&flags.providerPath, "provider-config", "",
		"IPAM provider config file (default $HOSTDB_PROVIDER_PATH or configs/ipam-provider.yaml)")

	root.AddCommand(
		newCheckCmd(flags),
		newDiffCmd(flags),
		newSyncCmd(flags),
		newDumpCmd(flags),
	)
	return root
}

func newCheckCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Parse the zone files and report what they define",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(flags.configPath)
			if err != nil {
				return err
			}
			state, files, err := loadTarget(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d zone files OK: %s\n", len(files), state.Summary())
			return nil
		},
	}
}

func newDiffCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "diff",
		Short: "Show the changes sync would make",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, target, err := setup(flags)
			if err != nil {
				return err
			}
			p, err := r.Plan(cmd.Context(), target)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), reconcile.FormatPlan(p))
			return nil
		},
	}
}

func newSyncCmd(flags *globalFlags) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Apply the zone files to the IPAM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, target, err := setup(flags)
			if err != nil {
				return err
			}
			res, err := r.Sync(cmd.Context(), target, dryRun)
			if res != nil {
				fmt.Fprint(cmd.OutOrStdout(), reconcile.FormatPlan(res.Plan))
				if !dryRun {
					fmt.Fprintf(cmd.OutOrStdout(), "Applied %d of %d actions.\n", res.Applied, len(res.Plan.Actions))
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the plan without applying it")
	return cmd
}

func newDumpCmd(flags *globalFlags) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the IPAM state as a zone file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, backend, err := loadBackend(flags)
			if err != nil {
				return err
			}
			if raw {
				lines, err := backend.Dump(cmd.Context())
				if err != nil {
					return err
				}
				for _, l := range lines {
					fmt.Fprintln(cmd.OutOrStdout(), l)
				}
				return nil
			}
			r := newReconciler(ctrl.Log.WithName("reconcile"), backend, cfg)
			state, err := r.Observe(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), zone.Render(state))
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the provider output without parsing it")
	return cmd
}

// loadTarget parses all configured zone files into one tree.
func loadTarget(cfg *config.Config) (*zone.State, []string, error) {
	files, err := cfg.ZoneFiles()
	if err != nil {
		return nil, nil, err
	}
	p := zone.NewParser(cfg.ParserOptions())
	for _, f := range files {
		if err := p.ParseFile(f); err != nil {
			return nil, nil, err
		}
	}
	return p.State(), files, nil
}

func loadBackend(flags *globalFlags) (*config.Config, ipam.Backend, error) {
	log := ctrl.Log.WithName("setup")

	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, nil, err
	}

	var providerCfg *config.ProviderConfig
	if flags.providerPath != "" {
		providerCfg, err = config.LoadProviderConfigFromPath(flags.providerPath)
	} else {
		providerCfg, err = config.LoadProviderConfig()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("unable to load provider config: %w", err)
	}
	providerCfg.WithZoneDefaults(cfg)
	log.V(1).Info("loaded provider config", "provider", providerCfg.Provider, "registered", ipam.Registered())

	backend, err := ipam.NewBackend(providerCfg.Provider, ctrl.Log.WithName(providerCfg.Provider), providerCfg.Settings)
	if err != nil {
		return nil, nil, fmt.Errorf("unable to create IPAM provider: %w", err)
	}
	return cfg, backend, nil
}

func setup(flags *globalFlags) (*reconcile.Reconciler, *zone.State, error) {
	cfg, backend, err := loadBackend(flags)
	if err != nil {
		return nil, nil, err
	}
	target, files, err := loadTarget(cfg)
	if err != nil {
		return nil, nil, err
	}
	log := ctrl.Log.WithName("reconcile")
	log.Info("loaded zone files", "files", len(files), "summary", target.Summary())
	return newReconciler(log, backend, cfg), target, nil
}

func newReconciler(log logr.Logger, backend ipam.Backend, cfg *config.Config) *reconcile.Reconciler {
	return &reconcile.Reconciler{
		Log:     log,
		Backend: backend,
		Options: cfg.ParserOptions(),
	}
}
