package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tolelom/tolmarket/wallet"
)

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate a validator key into the keystore file",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := wallet.Generate()
		if err != nil {
			return err
		}
		if err := wallet.SaveKey(keyFile, keystorePassword(), w.PrivKey()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Public key (validator address): %s\nSaved to: %s\n", w.PubKey(), keyFile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(genkeyCmd)
}
