package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropDatabas3/socialauth/internal/oauth/apple"
	"github.com/dropDatabas3/socialauth/internal/oauth/jwks"
)

// apple-secret imprime el client_secret firmado para Sign in with Apple.
func newAppleSecretCmd() *cobra.Command {
	var (
		team, client, keyID, keyFile string
		ttl                          time.Duration
	)
	cmd := &cobra.Command{
		Use:   "apple-secret",
		Short: "Genera el client_secret (JWT ES256) de Sign in with Apple",
		RunE: func(cmd *cobra.Command, args []string) error {
			if team == "" || client == "" || keyID == "" || keyFile == "" {
				return errors.New("apple-secret: --team, --client, --key-id and --key-file are required")
			}
			pem, err := os.ReadFile(keyFile)
			if err != nil {
				return err
			}
			s, err := apple.ClientSecret(apple.SecretRequest{
				TeamID:   team,
				ClientID: client,
				KeyID:    keyID,
				KeyPEM:   pem,
				TTL:      ttl,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "Apple Team ID")
	cmd.Flags().StringVar(&client, "client", "", "Services ID (client_id)")
	cmd.Flags().StringVar(&keyID, "key-id", "", "Key ID del .p8")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "Ruta al AuthKey_<KEYID>.p8")
	cmd.Flags().DurationVar(&ttl, "ttl", apple.MaxSecretTTL, "Vida del secret (máx. 180 días)")
	return cmd
}

// jwks-check valida la firma de un JWT contra un JWKS remoto.
func newJWKSCheckCmd() *cobra.Command {
	var url, token string
	cmd := &cobra.Command{
		Use:   "jwks-check",
		Short: "Verifica la firma de un JWT contra un JWKS",
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" || token == "" {
				return errors.New("jwks-check: --url and --token are required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			set, err := jwks.Fetch(ctx, &http.Client{Timeout: 15 * time.Second}, url)
			if err != nil {
				return err
			}
			if err := jwks.ValidateErr(token, set); err != nil {
				return fmt.Errorf("jwks-check: invalid: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "valid (%d keys)\n", len(set.Keys))
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "URL del JWKS (ej. https://appleid.apple.com/auth/keys)")
	cmd.Flags().StringVar(&token, "token", "", "JWT a verificar")
	return cmd
}
