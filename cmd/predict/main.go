package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"furnace-optimizer/backend/internal/config"
	"furnace-optimizer/backend/internal/logging"
	"furnace-optimizer/backend/internal/params"
	"furnace-optimizer/backend/internal/services"
	"furnace-optimizer/backend/internal/session"
	"furnace-optimizer/backend/internal/workflow"
	"furnace-optimizer/backend/pkg/models"
)

type options struct {
	configPath string
	token      string
	username   string
	password   string
	values     map[string]string
}

func main() {
	var opts options

	root := &cobra.Command{
		Use:   "predict",
		Short: "Submit blast furnace parameters to the optimization service",
		Long: "Submit the eight measured process parameters and print the predicted value for each\n" +
			"alongside the number of non-dominated solutions found.",
		Example:       "  predict --username op --password secret --param blast_furnace_temp=1200 --param humidity=1.0 ...",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	root.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	root.Flags().StringVar(&opts.token, "token", "", "bearer token (defaults to optimizer.token)")
	root.Flags().StringVarP(&opts.username, "username", "u", "", "log in with this username instead of a token")
	root.Flags().StringVarP(&opts.password, "password", "p", "", "password for --username")
	root.Flags().StringToStringVar(&opts.values, "param", nil, "parameter as field=value, repeatable")

	root.AddCommand(&cobra.Command{
		Use:   "fields",
		Short: "List the parameter fields in submission order",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, f := range models.Fields {
				fmt.Fprintf(w, "%s\t%s\n", f, models.Label(f))
			}
			return w.Flush()
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer, opts options) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	holder, err := authenticate(ctx, cfg, opts, logger)
	if err != nil {
		return err
	}

	form := params.NewForm()
	if err := form.SetFields(opts.values); err != nil {
		return err
	}

	optimizer := services.NewHTTPOptimizerClient(cfg.Optimizer.URL, services.WithLogger(logger))
	wf := workflow.NewController(form, optimizer, holder, workflow.WithLogger(logger))

	state, err := wf.Submit(ctx)
	if err != nil {
		return err
	}
	if state.Phase == workflow.PhaseFailed {
		return errors.New(state.Error)
	}
	return printResult(out, state)
}

func authenticate(ctx context.Context, cfg *config.Config, opts options, logger *logging.Logger) (*session.TokenHolder, error) {
	if opts.username == "" {
		token := opts.token
		if token == "" {
			token = cfg.Optimizer.Token
		}
		return session.NewStaticHolder(token), nil
	}

	identity := services.NewHTTPIdentityClient(cfg.Identity.URL, cfg.Identity.TokenTTL, services.WithLogger(logger))
	token, err := identity.Login(ctx, opts.username, opts.password)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	return session.NewTokenHolder(token), nil
}

func printResult(out io.Writer, state workflow.State) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "PARAMETER\tINPUT\tPREDICTED\t")
	for _, pair := range state.Result.Pairs {
		fmt.Fprintf(w, "%s\t%g\t%s\t\n", pair.Label, pair.Input, pair.Text)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nNon-dominated solutions: %d\n", state.Result.SolutionCount)
	if state.Result.Message != "" {
		fmt.Fprintf(out, "Message: %s\n", state.Result.Message)
	}
	return nil
}
