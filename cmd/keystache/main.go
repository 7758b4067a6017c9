// Command keystache connects to a signer backend socket and prompts on the
// terminal for every sign-event and pay-invoice request that comes in.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nbd-wtf/keystache"
	"github.com/nbd-wtf/keystache/backend"
)

var (
	flagConfig  string
	flagSocket  string
	flagTimeout string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "keystache",
	Short: "approve or deny nostr signing and lightning payment requests",
	Long: `keystache connects to a local signer backend and asks you, on this
terminal, about every request external applications make: events to be signed
with your nostr key and lightning invoices to be paid. Nothing happens
without your say-so.`,
	SilenceUsage: true,
	RunE:         run,
}

var pubkeyCmd = &cobra.Command{
	Use:   "pubkey",
	Short: "print the public key of the active keypair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(flagConfig)
		if err != nil {
			return err
		}
		if err := applyFlags(&cfg); err != nil {
			return err
		}

		client, err := backend.Dial(cmd.Context(), cfg.Socket)
		if err != nil {
			return err
		}
		defer client.Close()

		ks := keystache.New(client)
		pk, err := ks.GetPublicKey(cmd.Context())
		if err != nil {
			return err
		}
		if pk == "" {
			log.Warn("no keypair set up yet")
			return nil
		}

		cmd.Println(pk)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&flagSocket, "socket", "s", "", "path to the signer backend socket")
	rootCmd.PersistentFlags().StringVarP(&flagTimeout, "timeout", "t", "", "how long to wait for an answer before denying, e.g. 90s (0 waits forever)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log everything that crosses the backend socket")
	rootCmd.AddCommand(pubkeyCmd)
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(flagConfig)
	if err != nil {
		return err
	}
	if err := applyFlags(&cfg); err != nil {
		return err
	}

	if flagVerbose {
		log.SetLevel(log.DebugLevel)
		keystache.InfoLogger.SetOutput(os.Stderr)
		keystache.DebugLogger.SetOutput(os.Stderr)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("connecting to signer backend", "socket", cfg.Socket)
	client, err := backend.Dial(ctx, cfg.Socket)
	if err != nil {
		return err
	}

	ks := keystache.New(client, keystache.WithDecisionTimeout(cfg.decisionTimeout))

	p := newPrompter(os.Stdin, os.Stdout)
	unregisterSign := ks.HandleSignEventRequests(p.signEvent)
	defer unregisterSign()
	unregisterPay := ks.HandlePayInvoiceRequests(p.payInvoice)
	defer unregisterPay()

	ks.Start()

	if pk, err := ks.GetPublicKey(ctx); err != nil {
		log.Warn("could not fetch public key", "err", err)
	} else if pk == "" {
		log.Warn("backend has no keypair yet, requests will keep coming anyway")
	} else {
		log.Info("serving approval requests", "pubkey", pk)
	}

	<-ctx.Done()
	log.Info("shutting down")
	return ks.Close()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
