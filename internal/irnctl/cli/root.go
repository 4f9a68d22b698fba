// Package cli implements the irn command: a thin harness over the SDK for
// trying credentials and registering invoices by hand.
package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/gstirn/internal/irnctl/app"
)

type options struct {
	configPath string
	metrics    bool
	stderr     io.Writer
}

// NewRootCommand returns the irn command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "irn",
		Short:         "GST e-invoice (IRP) portal client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			opts.stderr = cmd.ErrOrStderr()
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML config file (IRN_* environment variables override it)")
	root.PersistentFlags().BoolVar(&opts.metrics, "metrics", false, "print request and cache metrics to stderr when done")

	root.AddCommand(
		tokenCmd(opts),
		partyCmd(opts),
		generateCmd(opts),
		getCmd(opts),
		qrCmd(),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

// withApp loads configuration, builds the application and runs fn with it.
func withApp(ctx context.Context, opts *options, fn func(*app.Application) error) error {
	cfg, err := app.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Close()

	err = fn(application)
	if opts.metrics && opts.stderr != nil {
		if werr := application.WriteMetrics(opts.stderr); werr != nil {
			application.Logger().Warn("failed to write metrics", "err", werr)
		}
	}
	return err
}

// withSession is withApp for commands that need an authenticated session.
func withSession(ctx context.Context, opts *options, fn func(*app.Application) error) error {
	return withApp(ctx, opts, func(a *app.Application) error {
		if err := a.Session().GenerateToken(ctx, false); err != nil {
			return err
		}
		return fn(a)
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
