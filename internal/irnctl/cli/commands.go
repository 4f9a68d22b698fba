package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/gstirn/internal/irnctl/app"
	"github.com/aussiebroadwan/gstirn/pkg/einvoice"
	"github.com/aussiebroadwan/gstirn/pkg/irnsdk"
	"github.com/aussiebroadwan/gstirn/pkg/qrx"
)

// tokenOutput never includes the token or SEK themselves.
type tokenOutput struct {
	GSTIN     string    `json:"gstin"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

func tokenCmd(opts *options) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Authenticate, reusing a cached token unless --force",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withApp(ctx, opts, func(a *app.Application) error {
				s := a.Session()
				if err := s.GenerateToken(ctx, force); err != nil {
					return err
				}
				creds := s.Credentials()
				return printJSON(cmd.OutOrStdout(), tokenOutput{
					GSTIN:     creds.GSTIN,
					Username:  creds.Username,
					ExpiresAt: s.ExpiresAt(),
				})
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "ignore the cache and ask the portal for a new token")
	return cmd
}

func partyCmd(opts *options) *cobra.Command {
	var (
		asBuyer bool
		pos     string
	)

	cmd := &cobra.Command{
		Use:   "party <gstin>",
		Short: "Look up a taxpayer by GSTIN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withSession(ctx, opts, func(a *app.Application) error {
				party, err := a.Session().GetPartyInfo(ctx, args[0])
				if err != nil {
					return err
				}
				if !asBuyer {
					return printJSON(cmd.OutOrStdout(), party)
				}

				buyer, err := einvoice.ToBuyer(party, pos)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), buyer)
			})
		},
	}

	cmd.Flags().BoolVar(&asBuyer, "buyer", false, "print as BuyerDtls instead of the raw record")
	cmd.Flags().StringVar(&pos, "pos", "", "place of supply for --buyer (default: the buyer's state)")
	return cmd
}

func generateCmd(opts *options) *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "generate <invoice.json>",
		Short: "Register an invoice and print the IRN document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if !json.Valid(raw) {
				return fmt.Errorf("%s is not valid JSON", args[0])
			}

			if validate {
				var inv einvoice.Invoice
				if err := json.Unmarshal(raw, &inv); err != nil {
					return fmt.Errorf("decode invoice: %w", err)
				}
				if err := inv.Validate(); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			return withSession(ctx, opts, func(a *app.Application) error {
				doc, err := a.Session().GenerateInvoice(ctx, json.RawMessage(raw))
				if err != nil {
					if irn, ok := duplicateOf(err); ok {
						a.Logger().WarnContext(ctx, "invoice already registered", "irn", irn)
					}
					return err
				}
				return printJSON(cmd.OutOrStdout(), doc)
			})
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", true, "check required fields before sending")
	return cmd
}

func getCmd(opts *options) *cobra.Command {
	var supplier string

	cmd := &cobra.Command{
		Use:   "get <irn>",
		Short: "Fetch a registered invoice by IRN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withSession(ctx, opts, func(a *app.Application) error {
				doc, err := a.Session().GetInvoiceByIRN(ctx, args[0], supplier)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), doc)
			})
		},
	}

	cmd.Flags().StringVar(&supplier, "supplier-gstin", "", "supplier GSTIN, when not the authenticated one")
	return cmd
}

func qrCmd() *cobra.Command {
	var (
		html   bool
		decode bool
	)

	cmd := &cobra.Command{
		Use:   "qr <signed-qr-code>",
		Short: "Render a SignedQRCode as a PNG data URI",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if decode {
				payload, err := irnsdk.DecodeSignedQRCode(args[0])
				if err != nil {
					return err
				}
				return printJSON(out, payload)
			}

			render := qrx.DataURI
			if html {
				render = qrx.HTML
			}
			s, err := render(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, s)
			return err
		},
	}

	cmd.Flags().BoolVar(&html, "html", false, "print an <img> tag instead of the bare URI")
	cmd.Flags().BoolVar(&decode, "decode", false, "print the signed payload instead of an image")
	return cmd
}

func duplicateOf(err error) (string, bool) {
	var reqErr *irnsdk.RequestError
	if !errors.As(err, &reqErr) {
		return "", false
	}
	return reqErr.DuplicateIRN()
}
