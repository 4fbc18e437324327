package kv

import (
	"github.com/ValentinKolb/fsKV/cmd/util"
	"github.com/ValentinKolb/fsKV/lib/store"
	"github.com/spf13/cobra"
)

var (
	kvStore store.IStore[string, string]

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform key-value store operations",
		PersistentPreRunE: setupKVStore,
	}
)

func init() {
	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(keysCmd)
	KeyValueCommands.AddCommand(lenCmd)
	KeyValueCommands.AddCommand(clearCmd)
	KeyValueCommands.AddCommand(dumpCmd)
	KeyValueCommands.AddCommand(alterCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVStore opens the store of the configured root
func setupKVStore(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	kvStore, err = util.GetConfig().OpenStore()
	return err
}
