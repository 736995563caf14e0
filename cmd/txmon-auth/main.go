package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alexjbarnes/txmon-auth/internal/hashing"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "txmon-auth",
		Short:         "Authentication service for the transaction monitoring API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context())
			},
		},
		newHashSecretCmd(),
		newGenKeyCmd(),
	)

	return root
}

func newHashSecretCmd() *cobra.Command {
	var iterations int

	cmd := &cobra.Command{
		Use:   "hash-secret",
		Short: "Hash a secret read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := hashing.New(iterations)
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.ErrOrStderr(), "Enter secret: ")

			scanner := bufio.NewScanner(cmd.InOrStdin())
			if !scanner.Scan() {
				return errors.New("no input")
			}

			hash, err := h.Hash(scanner.Text())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), hash)

			return nil
		},
	}

	cmd.Flags().IntVar(&iterations, "iterations", hashing.DefaultIterations, "PBKDF2 iteration count")

	return cmd
}

func newGenKeyCmd() *cobra.Command {
	var (
		size   int
		useHex bool
	)

	cmd := &cobra.Command{
		Use:   "gen-key",
		Short: "Generate a random JWT signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if size < 32 {
				return fmt.Errorf("--bytes must be at least 32, got %d", size)
			}

			buf := make([]byte, size)
			if _, err := rand.Read(buf); err != nil {
				return fmt.Errorf("reading random bytes: %w", err)
			}

			if useHex {
				fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(buf))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), base64.RawURLEncoding.EncodeToString(buf))
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&size, "bytes", 48, "key length in bytes")
	cmd.Flags().BoolVar(&useHex, "hex", false, "hex encode instead of base64url")

	return cmd
}
