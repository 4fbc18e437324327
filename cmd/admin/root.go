package admin

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/fsKV/cmd/util"
	"github.com/ValentinKolb/fsKV/lib/store/fstore"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
)

var (
	plog = logger.GetLogger("cli")

	// InitCmd creates a new store
	InitCmd = &cobra.Command{
		Use:   "init",
		Short: "Create a new store",
		Long:  "Create a new, empty store in the root directory. Fails if the directory already holds a store or other files, unless --overwrite is given.",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.BindCommandFlags(cmd)
		},
		RunE: runInit,
	}

	// StatsCmd prints statistics and metrics of a store
	StatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Print statistics of a store",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return util.BindCommandFlags(cmd)
		},
		RunE: runStats,
	}
)

func init() {
	InitCmd.Flags().Bool("overwrite", false, util.WrapString("Remove everything in the root directory first"))
	StatsCmd.Flags().Bool("metrics", false, util.WrapString("Also print the process metrics in Prometheus text format"))
}

func runInit(_ *cobra.Command, _ []string) error {
	config := util.GetConfig()
	opts, err := config.StoreOptions(viper.GetBool("overwrite"))
	if err != nil {
		return err
	}

	if _, err := fstore.OpenNew[string, string](config.Root, opts); err != nil {
		return err
	}

	plog.Infof("initialized store %s", config.Root)
	fmt.Printf("created store in %s\n", config.Root)
	return nil
}

func runStats(_ *cobra.Command, _ []string) error {
	config := util.GetConfig()
	s, err := config.OpenStore()
	if err != nil {
		return err
	}

	info, err := s.Info()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(info); err != nil {
		return err
	}

	if viper.GetBool("metrics") {
		fmt.Println()
		metrics.WritePrometheus(os.Stdout, true)
	}
	return nil
}
