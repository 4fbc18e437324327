package cmd

import (
	"fmt"
	"github.com/ValentinKolb/fsKV/cmd/admin"
	"github.com/ValentinKolb/fsKV/cmd/kv"
	"github.com/ValentinKolb/fsKV/cmd/lock"
	"github.com/ValentinKolb/fsKV/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "fskv",
		Short: "filesystem key-value store",
		Long: fmt.Sprintf(`fsKV (v%s)

A persistent key-value store that keeps every key in its own file and
guards it with a filesystem lock. Any number of goroutines and processes
can share one store directory.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of fsKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fsKV v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(admin.InitCmd)
	RootCmd.AddCommand(admin.StatsCmd)
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(lock.LockCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupStoreFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
