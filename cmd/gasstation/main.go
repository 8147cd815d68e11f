package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/celer-network/aave-gas-station/api"
	"github.com/celer-network/aave-gas-station/config"
	gaslog "github.com/celer-network/aave-gas-station/log"
)

const (
	flagConfig = "config"
	flagPort   = "port"
)

var logger = gaslog.NewLogger("main")

func main() {
	cobra.EnableCommandSorting = false
	// the global logger follows gaslog.toml like the module loggers
	log.Logger = gaslog.Default().With().Caller().Logger()

	rootCmd := &cobra.Command{
		Use:           "gasstation",
		Short:         "Aave gas station relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String(flagConfig, "./config.yaml", "config path")
	rootCmd.AddCommand(
		serveCommand(),
		topUpCommand(),
		reserveCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

// withApp loads the config, builds the app and runs fn until it returns or
// the process is interrupted.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	path, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				port := a.cfg.Server.Port
				if cmd.Flags().Changed(flagPort) {
					port, _ = cmd.Flags().GetInt(flagPort)
				}
				server := api.NewServer(a.reader, a.builder, a.broadcaster, a.relay, a.store)
				return server.Run(ctx, fmt.Sprintf(":%d", port))
			})
		},
	}
	cmd.Flags().Int(flagPort, 0, "listen port, overrides server.port")
	return cmd
}

func topUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "topup <address>",
		Short: "Send the gas allowance to a wallet and wait for confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sponsorship, err := a.relay.Sponsor(ctx, args[0])
				if printErr := printJSON(cmd, sponsorship); printErr != nil {
					return printErr
				}
				return err
			})
		},
	}
}

func reserveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reserve [coin]",
		Short: "Print Aave reserve data of a configured token",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				symbol := a.reader.DepositToken()
				if len(args) == 1 {
					symbol = args[0]
				}
				data, err := a.reader.ReserveData(ctx, symbol)
				if err != nil {
					return err
				}
				return printJSON(cmd, data)
			})
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
