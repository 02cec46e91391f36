package cmd

import (
	"fmt"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for commit, build date, Go and gofulmen versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		identity := GetAppIdentity()

		fmt.Fprintf(w, "%s %s\n", identity.BinaryName, versionInfo.Version)
		if !extended {
			return nil
		}

		deps := crucible.GetVersion()
		fmt.Fprintf(w, "Commit:   %s\n", versionInfo.Commit)
		fmt.Fprintf(w, "Built:    %s\n", versionInfo.BuildDate)
		fmt.Fprintf(w, "Go:       %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		fmt.Fprintf(w, "Gofulmen: %s\n", deps.Gofulmen)
		fmt.Fprintf(w, "Crucible: %s\n", deps.Crucible)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
