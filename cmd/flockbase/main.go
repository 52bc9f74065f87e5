package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/openflock/flockbase/utils/dotenv"
	Logger "github.com/openflock/flockbase/utils/log"
)

var rootCmd = &cobra.Command{
	Use:   "flockbase",
	Short: "Fetch social graph data and keep its history in Postgres",
	Long: `flockbase pulls profiles, tweets, follow edges and list memberships
through a rotating credential pool and records them as slowly changing
dimensions, so later fetches never erase what earlier fetches saw.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return dotenv.LoadDotEnvs()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		Logger.Log.Errorln(err)
		os.Exit(1)
	}
}
