package cmd

import (
	"fmt"
	"io"
	"time"

	authsvc "github.com/bluewing/auth-core/services/auth"
	"github.com/spf13/cobra"
)

var sweepRetention time.Duration

type sweepResult struct {
	Deleted   int64     `json:"deleted" yaml:"deleted"`
	Retention string    `json:"retention" yaml:"retention"`
	Cutoff    time.Time `json:"cutoff" yaml:"cutoff"`
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete refresh tokens unused for longer than the retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := openEnvironment(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		retention := env.cfg.Auth.RefreshRetention
		if sweepRetention > 0 {
			retention = sweepRetention
		}

		now := time.Now()
		manager := authsvc.NewRefreshTokenManager(
			env.factory.NewRepositories().RefreshTokens,
			nil,
			authsvc.RefreshConfig{
				Prefix:    env.cfg.Auth.RefreshPrefix,
				Length:    env.cfg.Auth.RefreshLength,
				Retention: retention,
				Now:       func() time.Time { return now },
			},
			env.logger,
			nil,
		)

		deleted, err := manager.DeleteAllExpiredRefreshTokens(ctx)
		if err != nil {
			return err
		}

		result := sweepResult{
			Deleted:   deleted,
			Retention: retention.String(),
			Cutoff:    now.Add(-retention).UTC(),
		}
		return render(cmd.OutOrStdout(), result, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "%s deleted %d refresh tokens %s\n",
				okFmt("✓"), result.Deleted, dimFmt("(unused since "+result.Cutoff.Format(time.RFC3339)+")"))
			return err
		})
	},
}

func init() {
	sweepCmd.Flags().DurationVar(&sweepRetention, "retention", 0, "Override REFRESH_TOKEN_RETENTION")
	rootCmd.AddCommand(sweepCmd)
}
