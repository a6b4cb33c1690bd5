package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/DanielPopoola/merchant-payment-gateway/internal/security"
	"github.com/spf13/cobra"
)

func tokenCmd() *cobra.Command {
	var (
		secret      string
		passwordKey string
	)

	cmd := &cobra.Command{
		Use:   "token [json]",
		Short: "Compute the token for a request body",
		Long: `Compute the token a merchant sends with a request.

The body is read from the argument, or from stdin when no argument is given.
Top-level scalar fields are signed; nested objects, arrays and any existing
token field are ignored.

Examples:
  gatewayctl token --secret s3cret '{"merchantId":"shop-1","orderId":"42","amount":1000}'
  cat init.json | gatewayctl token --secret s3cret`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw []byte
			if len(args) == 1 {
				raw = []byte(args[0])
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read request body: %w", err)
				}
				raw = data
			}

			fields, err := security.ParseFields(raw)
			if err != nil {
				return err
			}

			auth := security.NewTokenAuthenticator(security.WithPasswordKey(passwordKey))
			if err := auth.CheckReserved(fields); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), auth.Sign(fields, secret))
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "merchant secret")
	cmd.Flags().StringVar(&passwordKey, "password-key", security.DefaultPasswordKey, "field name the secret is sorted under")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if secret == "" {
			return errors.New("--secret is required")
		}
		return nil
	}

	return cmd
}
