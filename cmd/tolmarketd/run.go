package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tolelom/tolmarket/internal/node"
	"github.com/tolelom/tolmarket/wallet"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the node",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		privKey, err := wallet.LoadKey(keyFile, keystorePassword())
		if err != nil {
			return fmt.Errorf("load key: %w", err)
		}

		n, err := node.New(cfg, privKey)
		if err != nil {
			return err
		}
		defer n.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		log.Infow("validator", "pubkey", privKey.Public().Hex(), "chain_id", cfg.Genesis.ChainID)
		if err := n.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		log.Info("shutdown complete")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
