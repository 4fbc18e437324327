package lock

import (
	"fmt"
	"github.com/ValentinKolb/fsKV/cmd/util"
	"github.com/ValentinKolb/fsKV/lib/codec"
	"github.com/ValentinKolb/fsKV/lib/db"
	"github.com/ValentinKolb/fsKV/lib/db/engines/bucket"
	"github.com/ValentinKolb/fsKV/lib/lockmgr"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	plog = logger.GetLogger("cli")

	recordDB db.IRecordDB
	locks    lockmgr.ILockManager

	holdShared   bool
	holdDuration time.Duration

	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:               "lock",
		Short:             "Inspect and hold the file locks of keys",
		PersistentPreRunE: setupLocks,
	}

	// holdCmd represents the hold command
	holdCmd = &cobra.Command{
		Use:   "hold [key]",
		Short: "Hold the lock of a key",
		Long: "Acquire the lock guarding the key and hold it until the duration passed or the process is interrupted. " +
			"Other processes using the store block on the key in the meantime.",
		Args: cobra.ExactArgs(1),
		RunE: runHold,
	}

	// pathCmd represents the path command
	pathCmd = &cobra.Command{
		Use:   "path [key]",
		Short: "Print the path of the file guarding a key",
		Args:  cobra.ExactArgs(1),
		RunE:  runPath,
	}
)

func init() {
	LockCommands.AddCommand(holdCmd)
	LockCommands.AddCommand(pathCmd)

	holdCmd.Flags().BoolVar(&holdShared, "shared", false, util.WrapString("Acquire a shared lock instead of an exclusive one"))
	holdCmd.Flags().DurationVar(&holdDuration, "duration", 0, util.WrapString("How long to hold the lock (0 holds it until interrupted)"))
}

// setupLocks opens the record store of the configured root
func setupLocks(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	recordDB, err = bucket.Open(util.GetConfig().Root, nil)
	if err != nil {
		return err
	}
	locks = lockmgr.NewLockManager(0)
	return nil
}

// keyPath returns the path of the unit guarding the key, keys are JSON encoded like in the kv commands
func keyPath(key string) (string, error) {
	k, err := codec.NewJSONCodec[string]().Encode(key)
	if err != nil {
		return "", err
	}
	return recordDB.Path(recordDB.Identify(k)), nil
}

func runPath(_ *cobra.Command, args []string) error {
	path, err := keyPath(args[0])
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}

func runHold(_ *cobra.Command, args []string) (err error) {
	path, err := keyPath(args[0])
	if err != nil {
		return err
	}

	var tok *lockmgr.Token
	if holdShared {
		tok, err = locks.AcquireShared(path)
	} else {
		tok, err = locks.AcquireExclusive(path)
	}
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %v", err)
	}
	defer func() {
		// an exclusive hold of a missing key leaves an empty unit behind
		if tok.Mode() == lockmgr.Exclusive {
			if pruneErr := recordDB.Prune(tok); pruneErr != nil {
				plog.Warningf("failed to prune %s: %v", path, pruneErr)
			}
		}
		if relErr := tok.Release(); relErr != nil && err == nil {
			err = fmt.Errorf("failed to release lock: %v", relErr)
		}
	}()

	fmt.Printf("acquired=true, mode=%s, path=%s\n", tok.Mode(), path)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	var timeout <-chan time.Time
	if holdDuration > 0 {
		timer := time.NewTimer(holdDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-timeout:
	case s := <-sig:
		plog.Infof("received %s, releasing lock", s)
	}

	fmt.Println("released=true")
	return nil
}
