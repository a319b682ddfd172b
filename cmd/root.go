package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"liquefier/internal/version"
	"liquefier/pkg/log"
)

var (
	logLevel   string
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   version.APP,
	Short: "liquefier computes the liquid helium production rate",
	Long: `Computes and charts the liquid helium production rate of the UCN liquefier
from level and flow history.
Version: ` + version.VERSION + `/` + version.COMMIT,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.InitLog(logLevel)
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level (debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "etc/config.yaml", "Path to config file")

	rootCmd.AddCommand(serveCommand)
	rootCmd.AddCommand(renderCommand)
	rootCmd.AddCommand(calibrateCommand)
	rootCmd.AddCommand(updateDBCommand)
	rootCmd.AddCommand(tokenCommand)
}
