package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/bluevia-go/bluevia/internal/cli/ui"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print bluevia version",
	RunE: func(cmd *cobra.Command, args []string) error {
		platform := runtime.GOOS + "/" + runtime.GOARCH
		if outputFormat(cmd) == "json" {
			return json.NewEncoder(os.Stdout).Encode(map[string]string{
				"version":  buildVersion,
				"commit":   buildCommit,
				"date":     buildDate,
				"go":       runtime.Version(),
				"platform": platform,
			})
		}
		fmt.Printf("%s bluevia %s (commit: %s, built: %s, %s %s)\n",
			ui.BrandEmoji, buildVersion, buildCommit, buildDate, runtime.Version(), platform)
		return nil
	},
}
