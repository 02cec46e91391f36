package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/flightontime/flightontime/internal/core/store"
)

var admissionCmd = &cobra.Command{
	Use:   "admission",
	Short: "Inspect and reset persisted admission statistics",
	Long: `Inspect and reset the per-client admission statistics written by the
server's admission log (allowed and rejected request counts per client key).`,
}

// admissionQueryFlags binds --all, --key and --prefix on cmd.
func admissionQueryFlags(cmd *cobra.Command, verb string) {
	cmd.Flags().Bool("all", false, verb+" all clients")
	cmd.Flags().String("key", "", verb+" a single client key (exact match)")
	cmd.Flags().String("prefix", "", verb+" client keys with matching prefix")
}

func admissionQueryFrom(cmd *cobra.Command) store.AdmissionQuery {
	all, _ := cmd.Flags().GetBool("all")
	key, _ := cmd.Flags().GetString("key")
	prefix, _ := cmd.Flags().GetString("prefix")
	return store.AdmissionQuery{
		All:    all,
		Key:    strings.TrimSpace(key),
		Prefix: strings.TrimSpace(prefix),
	}
}

func init() {
	admissionCmd.AddCommand(admissionListCmd)
	admissionCmd.AddCommand(admissionResetCmd)
	rootCmd.AddCommand(admissionCmd)
}
