package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SachioKuro/mqs/internal/config"
)

var (
	envFile    string
	brokerAddr string
	timeout    time.Duration
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "queue-cli",
	Short: "queue-cli - talk to a running queue broker",
	Long: `queue-cli sends single requests to a queue broker and prints the response.

Payload arguments that parse as JSON are sent as-is; anything else is sent
as a JSON string.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			return nil
		}
		addr, err := resolveAddr(envFile)
		if err != nil {
			return err
		}
		brokerAddr = addr
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveAddr returns the broker address configured through the
// environment or envFile. A bare ":port" is dialed on localhost.
func resolveAddr(envFile string) (string, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return "", err
	}
	addr := cfg.Server.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return addr, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to .env file")
	rootCmd.PersistentFlags().StringVar(&brokerAddr, "addr", "localhost"+config.DefaultQueueAddr, "broker address (default from QUEUE_ADDR)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print messages as JSON lines")

	rootCmd.AddCommand(enqueueCmd, enqueueAnyCmd, readAllCmd, drainCmd)
}
