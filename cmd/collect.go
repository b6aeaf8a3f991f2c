package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/carlos-aws/repo-traffic-tracker/config"
	"github.com/carlos-aws/repo-traffic-tracker/logger"
	"github.com/carlos-aws/repo-traffic-tracker/models"
	"github.com/carlos-aws/repo-traffic-tracker/publisher"
	"github.com/carlos-aws/repo-traffic-tracker/service"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Runs one traffic collection pass and prints the summary as JSON",
	Long: `Fetches the trailing daily clone and view series for every configured
repository, publishes the records downstream, and prints the run summary as
indented JSON on standard output. Repository-level failures are reported in
the summary; the command itself only fails when configuration cannot be
loaded.`,
	SilenceUsage: true,
	RunE:         runCollect,
}

func runCollect(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.NewConfig()
	if err := cfg.Load(); err != nil {
		return err
	}
	if verbose, _ := cmd.InheritedFlags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		return err
	}
	defer logger.Sync()

	opts, err := overrideOptions(cmd)
	if err != nil {
		return err
	}

	svc, err := service.NewFromConfig(ctx, cfg, opts...)
	if err != nil {
		return err
	}

	summary, err := svc.Run(ctx)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// overrideOptions maps the bypass flags onto service options.
func overrideOptions(cmd *cobra.Command) ([]service.Option, error) {
	var opts []service.Option

	if list, _ := cmd.Flags().GetString("repositories"); list != "" {
		repos, err := models.ParseRepositoryList(list)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithRepositorySource(staticRepositories(repos)))
	}
	if token, _ := cmd.Flags().GetString("token"); token != "" {
		opts = append(opts, service.WithCredentialSource(staticCredentials{token: token}))
	}
	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		opts = append(opts, service.WithPublisher(publisher.Discard{}))
	}
	return opts, nil
}

// staticRepositories serves a literal repository list from the command line.
type staticRepositories []models.RepositoryRef

func (s staticRepositories) List(ctx context.Context) ([]models.RepositoryRef, error) {
	return s, nil
}

// staticCredentials serves a single default token from the command line.
type staticCredentials struct {
	token string
}

func (s staticCredentials) Load(ctx context.Context) (*models.CredentialBundle, error) {
	return &models.CredentialBundle{DefaultToken: s.token}, nil
}

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.Flags().String("repositories", "", `Semicolon-separated "owner/name" list, bypassing the parameter store`)
	collectCmd.Flags().String("token", "", "Access token used for every repository, bypassing the secret store")
	collectCmd.Flags().Bool("dry-run", false, "Fetch and normalize but discard records instead of publishing")
}
