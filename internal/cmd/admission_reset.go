package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flightontime/flightontime/internal/config"
	"github.com/flightontime/flightontime/internal/core"
	"github.com/flightontime/flightontime/internal/output"
)

var (
	admissionResetYes    bool
	admissionResetDryRun bool
	admissionResetBucket bool
)

var admissionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete persisted admission statistics",
	Long: `Delete persisted admission statistics. With the redis backend,
--bucket --key <client> also drops that client's live bucket so it is
admitted again immediately.`,
	Example: `  flightontime admission reset --key 198.51.100.7
  flightontime admission reset --key 198.51.100.7 --bucket
  flightontime admission reset --all --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		query := admissionQueryFrom(cmd)
		if err := query.Validate(); err != nil {
			return err
		}
		if query.All && !admissionResetYes && !admissionResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if admissionResetBucket {
			if err := checkBucketReset(cfg, query.Key); err != nil {
				return err
			}
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		summary := output.ResetSummary{DryRun: admissionResetDryRun}
		if summary.Matched, err = db.CountAdmissions(cmd.Context(), query); err != nil {
			return err
		}
		if !summary.DryRun {
			if summary.Deleted, err = db.ResetAdmissions(cmd.Context(), query); err != nil {
				return err
			}
			if admissionResetBucket {
				if err := resetLiveBucket(cmd.Context(), cfg, core.ClientKey(query.Key)); err != nil {
					return err
				}
				summary.BucketReset = true
			}
		}

		rendered, err := output.NewFormatter(format).FormatReset(summary)
		if err != nil {
			return err
		}

		sink, err := commandSink(cmd, format, "admission.reset")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

// checkBucketReset rejects --bucket where no shared bucket can be reached.
// In-memory buckets live inside the server process.
func checkBucketReset(cfg *config.Config, key string) error {
	if cfg.RateLimit.Backend != config.BackendRedis {
		return fmt.Errorf("--bucket needs ratelimit.backend=%s (in-memory buckets live in the server)", config.BackendRedis)
	}
	if key == "" {
		return errors.New("--bucket requires --key")
	}
	return nil
}

// resetLiveBucket drops key's bucket from the shared redis store.
func resetLiveBucket(ctx context.Context, cfg *config.Config, key core.ClientKey) error {
	client, limiter, err := newRedisLimiter(cfg)
	if err != nil {
		return err
	}
	defer client.Close() // nolint:errcheck // best-effort cleanup
	return limiter.Reset(ctx, key)
}

func init() {
	admissionQueryFlags(admissionResetCmd, "Reset")
	admissionResetCmd.Flags().BoolVar(&admissionResetYes, "yes", false, "Confirm destructive reset")
	admissionResetCmd.Flags().BoolVar(&admissionResetDryRun, "dry-run", false, "Show what would be deleted")
	admissionResetCmd.Flags().BoolVar(&admissionResetBucket, "bucket", false, "Also drop the live redis bucket for --key")
	addOutputFlags(admissionResetCmd, "table|json|yaml")
}
