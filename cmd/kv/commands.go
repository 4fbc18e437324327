package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/fsKV/lib/store"
	"github.com/spf13/cobra"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]
			if err := kvStore.Insert(key, value); err != nil {
				return err
			} else {
				fmt.Println("set successfully")
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			resp, err := kvStore.Get(key)
			if errors.Is(err, store.ErrNotFound) {
				fmt.Printf("key=%s, found=false\n", key)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=true, resp=%s\n", key, resp)
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := kvStore.Delete(key); err != nil {
				return err
			} else {
				fmt.Println("delete successfully")
			}
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if found, err := kvStore.Contains(key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%t\n", key, found)
			}
			return nil
		},
	}
	keysCmd = &cobra.Command{
		Use:   "keys",
		Short: "Lists all keys (snapshot, takes no locks)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := kvStore.GetKeys()
			if err != nil {
				return err
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Println(k)
			}
			return nil
		},
	}
	lenCmd = &cobra.Command{
		Use:   "len",
		Short: "Prints the number of keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := kvStore.Len()
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Deletes all keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := kvStore.Clear(); err != nil {
				return err
			}
			fmt.Println("cleared successfully")
			return nil
		},
	}
	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Prints all key value pairs as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := kvStore.Entries()
			if err != nil {
				return err
			}
			out := make(map[string]string, len(entries))
			for _, e := range entries {
				out[e.Key] = e.Value
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	alterCmd = &cobra.Command{
		Use:   "alter [key]",
		Short: "Atomically changes the value of a key",
		Long: `Atomically changes the value of a key while holding its exclusive lock.
Exactly one of --incr, --append or --set must be given. Without --default the
key must exist.`,
		Args: cobra.ExactArgs(1),
		RunE: runAlter,
	}
)

func init() {
	alterCmd.Flags().Int64("incr", 0, "Add this number to an integer value")
	alterCmd.Flags().String("append", "", "Append this text to the value")
	alterCmd.Flags().String("set", "", "Replace the value")
	alterCmd.Flags().String("default", "", "Value to start from if the key does not exist")
}

func runAlter(cmd *cobra.Command, args []string) error {
	key := args[0]
	flags := cmd.Flags()

	fn, err := transformFromFlags(flags.Changed("incr"), flags.Changed("append"), flags.Changed("set"),
		func() int64 { n, _ := flags.GetInt64("incr"); return n },
		func(name string) string { s, _ := flags.GetString(name); return s },
	)
	if err != nil {
		return err
	}

	// the transform cannot fail inside Alter, it keeps the old value instead
	var fnErr error
	safe := func(old string) string {
		v, err := fn(old)
		if err != nil {
			fnErr = err
			return old
		}
		return v
	}

	if flags.Changed("default") {
		def, _ := flags.GetString("default")
		err = kvStore.AlterWithDefault(key, def, safe)
	} else {
		err = kvStore.Alter(key, safe)
	}
	if err != nil {
		return err
	}
	if fnErr != nil {
		return fnErr
	}

	v, err := kvStore.Get(key)
	if err != nil {
		return err
	}
	fmt.Printf("key=%s, resp=%s\n", key, v)
	return nil
}

// transformFromFlags builds the alter transform for the given flags
func transformFromFlags(incr, appendText, set bool, incrBy func() int64, text func(string) string) (func(string) (string, error), error) {
	n := 0
	for _, b := range []bool{incr, appendText, set} {
		if b {
			n++
		}
	}
	if n != 1 {
		return nil, fmt.Errorf("exactly one of --incr, --append, --set is required")
	}

	switch {
	case incr:
		by := incrBy()
		return func(old string) (string, error) {
			i, err := strconv.ParseInt(strings.TrimSpace(old), 10, 64)
			if err != nil {
				return "", fmt.Errorf("value %q is not an integer", old)
			}
			return strconv.FormatInt(i+by, 10), nil
		}, nil
	case appendText:
		suffix := text("append")
		return func(old string) (string, error) {
			// keep JSON strings valid
			var s string
			if err := json.Unmarshal([]byte(old), &s); err == nil {
				b, err := json.Marshal(s + suffix)
				return string(b), err
			}
			return old + suffix, nil
		}, nil
	default:
		value := text("set")
		return func(string) (string, error) { return value, nil }, nil
	}
}
