package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/haje01/swak/agent"
	"github.com/haje01/swak/config"
	"github.com/haje01/swak/metric"
	"github.com/haje01/swak/plugin"
	"github.com/haje01/swak/stdplugins"
)

type globalFlags struct {
	logLevel  string
	logFormat string
}

type runFlags struct {
	configPath string
	home       string
	dryrun     bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           appName,
		Short:         "Tag routed event pipeline agent",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", getEnv("SWAK_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: SWAK_LOG_LEVEL)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", getEnv("SWAK_LOG_FORMAT", "text"),
		"Log format: json, text (env: SWAK_LOG_FORMAT)")
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetVersionTemplate(fmt.Sprintf("%s version %s\n", appName, Version))

	root.AddCommand(newRunCmd(g), newTestCmd(g), newListCmd(), newDescCmd(), newVersionCmd())
	return root
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent described by a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				cfg *config.Config
				err error
			)
			if f.configPath != "" {
				cfg, err = config.LoadFile(f.configPath)
			} else {
				cfg, err = config.Load(f.home)
			}
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			level, format := g.logLevel, g.logFormat
			if !cmd.Flags().Changed("log-level") && cfg.Log.Level != "" {
				level = cfg.Log.Level
			}
			if !cmd.Flags().Changed("log-format") && cfg.Log.Format != "" {
				format = cfg.Log.Format
			}
			logger := setupLogger(level, format).With("svc", cfg.SvcName)
			slog.SetDefault(logger)

			reg, err := stdplugins.NewRegistry()
			if err != nil {
				return err
			}
			a := agent.NewServiceAgent(cfg, reg,
				agent.WithLogger(logger),
				agent.WithMetrics(metric.NewMetricsRegistry()),
				agent.WithVersion(Version))

			if f.dryrun {
				if err := a.Build(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
				return nil
			}

			logger.Info("Starting swak", "run_id", a.RunID(), "home", cfg.Home)
			return a.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", getEnv("SWAK_CONFIG", ""),
		"Path to the config file (env: SWAK_CONFIG)")
	cmd.Flags().StringVar(&f.home, "home", "", "Home directory holding "+config.FileName+" (env: "+config.HomeEnv+")")
	cmd.Flags().BoolVar(&f.dryrun, "dryrun", false, "Build the topology and exit")
	return cmd
}

func newTestCmd(g *globalFlags) *cobra.Command {
	var debug bool
	cmd := &cobra.Command{
		Use:   "test <chain>...",
		Short: "Run plugin chains, e.g. 'i.counter -c 3 | m.reform -w a=1'",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger(g.logLevel, g.logFormat)
			slog.SetDefault(logger)

			reg, err := stdplugins.NewRegistry()
			if err != nil {
				return err
			}
			a := agent.NewTestAgent(reg, debug,
				agent.WithLogger(logger),
				agent.WithOutput(cmd.OutOrStdout()))
			return a.Run(cmd.Context(), args...)
		},
	}
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Stop on the first event error")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := stdplugins.NewRegistry()
			if err != nil {
				return err
			}
			return printList(cmd, reg)
		},
	}
}

func printList(cmd *cobra.Command, reg *plugin.Registry) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, info := range reg.List() {
		fmt.Fprintf(tw, "%s\t%s\n", info.Name, info.Description)
	}
	return tw.Flush()
}

func newDescCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "desc <plugin>",
		Short: "Show the arguments of a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := stdplugins.NewRegistry()
			if err != nil {
				return err
			}
			info, err := reg.Describe(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", info.Name, info.Description)
			if info.Usage != "" {
				fmt.Fprintf(out, "\nArguments:\n%s", info.Usage)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	}
}
