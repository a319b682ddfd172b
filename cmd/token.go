package cmd

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"liquefier/internal/config"
	"liquefier/internal/server"
)

var (
	tokenOperator string
	tokenTTL      time.Duration
)

var tokenCommand = &cobra.Command{
	Use:   "token",
	Short: "Mint a token for the command endpoint",
	Run: func(cmd *cobra.Command, args []string) {
		conf, err := config.InitConfig(configFile)
		if err != nil {
			logrus.Fatal("initConfig error, ", err.Error())
		}
		token, err := server.GenToken(conf.JwtSecret, tokenOperator, tokenTTL)
		if err != nil {
			logrus.Fatal(err)
		}
		fmt.Println(token)
	},
}

func init() {
	tokenCommand.Flags().StringVar(&tokenOperator, "operator", "operator", "Name carried in the token")
	tokenCommand.Flags().DurationVar(&tokenTTL, "ttl", 30*24*time.Hour, "Token lifetime")
}
