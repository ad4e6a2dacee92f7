package main

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/younsl/snapshooter/internal/config"
	"github.com/younsl/snapshooter/internal/version"
	"github.com/younsl/snapshooter/pkg/aws"
	"github.com/younsl/snapshooter/pkg/cloud"
	"github.com/younsl/snapshooter/pkg/openstack"
)

// Subcommands
const (
	commandCreator   = "creator"
	commandDestroyer = "destroyer"
)

// identityFactory builds the cloud identity for a configuration
type identityFactory func(ctx context.Context, cfg *config.Config, verbose int, logger zerolog.Logger) (cloud.Identity, error)

// app holds the command line state shared by every subcommand
type app struct {
	configPath     string
	cloud          string
	osCloud        string
	region         string
	poolSize       int
	waitTimeout    int
	pushgatewayURL string
	dryRun         bool
	devel          bool
	verbose        int
	report         bool
	showVersion    bool

	newIdentity identityFactory
	lookupEnv   func(string) (string, bool)
	stdout      io.Writer
	stderr      io.Writer
}

func newApp() *app {
	return &app{
		newIdentity: newCloudIdentity,
		lookupEnv:   os.LookupEnv,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "snapshooter",
		Short: "Automatic volume snapshots with monthly and weekly retention",
		Long: `snapshooter creates a daily snapshot of every opted-in volume of every
tenant the caller may act within, and destroys the automatic snapshots whose
retention has expired.

Volumes opt in with the automatic_snapshots metadata (or tag) set to true.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.showVersion {
				_, err := io.WriteString(cmd.OutOrStdout(), version.Get().String()+"\n")
				return err
			}
			return cmd.Help()
		},
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Path to a YAML configuration file")
	flags.StringVar(&a.cloud, "cloud", config.DefaultCloud, "Cloud provider (openstack, aws)")
	flags.StringVar(&a.osCloud, "os-cloud", "", "Name of the clouds.yaml entry (AWS: shared config profile) [env OS_CLOUD]")
	flags.StringVar(&a.region, "region", "", "Region override")
	flags.IntVar(&a.poolSize, "pool-size", config.DefaultPoolSize, "Number of tenants processed concurrently [env POOL_SIZE]")
	flags.IntVar(&a.waitTimeout, "wait-completion-timeout", config.DefaultWaitCompletionTimeout, "Seconds to wait for a snapshot to be available or deleted [env WAIT_COMPLETION_TIMEOUT]")
	flags.StringVar(&a.pushgatewayURL, "pushgateway-url", "", "Push run metrics to this Prometheus Pushgateway [env PUSHGATEWAY_URL]")
	flags.BoolVarP(&a.dryRun, "dry-run", "n", false, "Log intended actions without creating or deleting anything")
	flags.BoolVar(&a.devel, "devel", false, "Human readable logs instead of JSON")
	flags.BoolVar(&a.report, "report", false, "Print a per-tenant report table on stdout when the run ends")
	flags.CountVarP(&a.verbose, "verbose", "v", "Increase verbosity (-v debug, -vv trace, -vvv SDK requests)")
	rootCmd.Flags().BoolVar(&a.showVersion, "version", false, "Show version information")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   commandCreator,
			Short: "Create today's snapshot of every opted-in volume",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd, commandCreator)
			},
		},
		&cobra.Command{
			Use:   commandDestroyer,
			Short: "Destroy expired and errored automatic snapshots",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.run(cmd, commandDestroyer)
			},
		},
	)
	return rootCmd
}

// loadConfig merges the configuration file, the environment and the flags
// explicitly set on the command line
func (a *app) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(a.lookupEnv); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("cloud") {
		cfg.Cloud = a.cloud
	}
	if flags.Changed("os-cloud") {
		cfg.OSCloud = a.osCloud
	}
	if flags.Changed("region") {
		cfg.Region = a.region
	}
	if flags.Changed("pool-size") {
		cfg.PoolSize = a.poolSize
	}
	if flags.Changed("wait-completion-timeout") {
		cfg.WaitCompletionTimeout = a.waitTimeout
	}
	if flags.Changed("pushgateway-url") {
		cfg.PushgatewayURL = a.pushgatewayURL
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newCloudIdentity(ctx context.Context, cfg *config.Config, verbose int, logger zerolog.Logger) (cloud.Identity, error) {
	if cfg.Cloud == config.CloudAWS {
		identity, err := aws.NewIdentity(ctx, aws.Options{
			Region:      cfg.Region,
			Profile:     cfg.OSCloud,
			RoleARNs:    cfg.AWS.RoleARNs,
			SessionName: cfg.AWS.SessionName,
			WireLogging: verbose >= 3,
		}, logger)
		if err != nil {
			return nil, err
		}
		return identity, nil
	}

	identity, err := openstack.NewIdentity(ctx, openstack.Options{
		Cloud:  cfg.OSCloud,
		Region: cfg.Region,
	}, logger)
	if err != nil {
		return nil, err
	}
	return identity, nil
}
