package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Veraticus/billflow/internal/cli"
	"github.com/Veraticus/billflow/internal/config"
	"github.com/Veraticus/billflow/internal/engine"
	"github.com/Veraticus/billflow/internal/inbox"
	"github.com/Veraticus/billflow/internal/llm"
	"github.com/Veraticus/billflow/internal/notify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Classify new messages and update the bill ledger",
		Long: `Fetch messages from a JSON file or Gmail, classify each one, and record
bills and payments in the ledger.

Messages that were already processed are skipped, so reconcile can be run
repeatedly over overlapping message sets.`,
		Example: `  billflow reconcile --input messages.json
  billflow reconcile --gmail --query "newer_than:3d" --workers 8
  billflow reconcile --input messages.json --dry-run`,
		RunE: runReconcile,
	}

	cmd.Flags().StringP("input", "i", "", "JSON or JSON-lines file of messages")
	cmd.Flags().Bool("gmail", false, "fetch messages from Gmail")
	cmd.Flags().String("query", "", "Gmail search query (default from gmail.query)")
	cmd.Flags().Int("workers", config.DefaultWorkers, "messages processed concurrently")
	cmd.Flags().Bool("dry-run", false, "classify and report without saving anything")
	cmd.Flags().Bool("no-progress", false, "disable the progress bar")
	cmd.MarkFlagsMutuallyExclusive("input", "gmail")
	cmd.MarkFlagsOneRequired("input", "gmail")

	_ = viper.BindPFlag("reconcile.workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("gmail.query", cmd.Flags().Lookup("query"))

	return cmd
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	source, err := newSource(ctx, cmd, settings)
	if err != nil {
		return err
	}

	msgs, err := source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch messages: %w", err)
	}
	if len(msgs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No messages to reconcile"))
		return nil
	}

	classifier, err := llm.NewBillClassifier(llmConfig(settings), slog.Default())
	if err != nil {
		return err
	}

	store, err := initStorage(ctx, settings)
	if err != nil {
		return err
	}
	defer closeStore(store)

	eng := engine.New(store, classifier,
		engine.Config{Workers: settings.Workers, DryRun: dryRun},
		engine.WithNotifier(newNotifier(settings)),
		engine.WithLogger(slog.Default()),
	)

	var progress engine.ProgressFunc
	if !noProgress {
		progress = cli.NewBatchProgress(cmd.ErrOrStderr(), len(msgs)).Observe
	}

	slog.Info("reconciling messages", "count", len(msgs), "workers", settings.Workers, "dry_run", dryRun)
	summary := eng.RunBatch(ctx, msgs, progress)

	if err := cli.RenderSummary(cmd.OutOrStdout(), summary, dryRun); err != nil {
		return err
	}

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("reconcile interrupted, %d messages not started", summary.Skipped)
	case summary.Failed > 0:
		return fmt.Errorf("%d messages failed and will be retried on the next run", summary.Failed)
	}
	return nil
}

func newSource(ctx context.Context, cmd *cobra.Command, settings *config.Settings) (inbox.Source, error) {
	if input, _ := cmd.Flags().GetString("input"); input != "" {
		return inbox.NewFileSource(config.ExpandPath(input)), nil
	}

	svc, err := inbox.NewGmailService(ctx, gmailOAuth(settings))
	if err != nil {
		return nil, err
	}
	return inbox.NewGmailSource(svc, inbox.GmailOptions{
		User:       settings.Gmail.User,
		Query:      settings.Gmail.Query,
		MaxResults: settings.Gmail.MaxResults,
	}, slog.Default()), nil
}

func newNotifier(settings *config.Settings) engine.Notifier {
	notifiers := notify.Multi{notify.NewLogNotifier(slog.Default())}
	if settings.Notify.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(settings.Notify.WebhookURL, settings.Notify.Timeout))
	}
	return notifiers
}

func llmConfig(settings *config.Settings) llm.Config {
	return llm.Config{
		Provider:        settings.LLM.Provider,
		Model:           settings.LLM.Model,
		APIKey:          settings.LLM.APIKey,
		Timeout:         settings.LLM.Timeout,
		RetryDelay:      settings.LLM.RetryDelay,
		MaxRetries:      settings.LLM.MaxRetries,
		RateLimit:       settings.LLM.RateLimit,
		ConfidenceFloor: settings.LLM.ConfidenceFloor,
	}
}

func gmailOAuth(settings *config.Settings) inbox.OAuthConfig {
	return inbox.OAuthConfig{
		ClientID:     settings.Gmail.ClientID,
		ClientSecret: settings.Gmail.ClientSecret,
		TokenFile:    settings.Gmail.TokenFile,
	}
}
