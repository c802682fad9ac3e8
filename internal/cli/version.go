package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	agentapi "github.com/coder/agentapi-sdk-go"
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the SDK version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(agentapi.Version)
	},
}
