package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flightontime/flightontime/internal/output"
)

var admissionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List admission statistics per client",
	Example: `  flightontime admission list
  flightontime admission list --prefix 10.0. --output-format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		query := admissionQueryFrom(cmd)
		if query.Key == "" && query.Prefix == "" {
			query.All = true
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		stats, err := db.ListAdmissions(cmd.Context(), query)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatAdmissions(stats)
		if err != nil {
			return err
		}

		sink, err := commandSink(cmd, format, "admission.list")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		_, err = fmt.Fprintln(sink.writer, rendered)
		return err
	},
}

func init() {
	admissionQueryFlags(admissionListCmd, "List")
	addOutputFlags(admissionListCmd, "table|markdown|json|yaml")
}
