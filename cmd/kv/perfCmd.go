package kv

import (
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/fsKV/cmd/util"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for fsKV stores",
		Long:    "Runs parallel benchmarks against the store in --root. All keys used start with __perf and are deleted afterwards.",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__perf"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfSkip             = make([]string, 0)

	// latency timers, one per benchmark
	perfRegistry = gometrics.NewRegistry()
)

// benchmark order
var perfTests = []string{"set", "set-large", "get", "alter", "alter-disjoint", "mixed"}

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. set,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the set-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Performance testing tool for fsKV stores")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetConfig().String())
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	benchmarks := map[string]func(b *testing.B, timer gometrics.Timer){
		"set":            benchSet,
		"set-large":      benchSetLarge,
		"get":            benchGet,
		"alter":          benchAlter,
		"alter-disjoint": benchAlterDisjoint,
		"mixed":          benchMixed,
	}

	for _, name := range perfTests {
		if shouldSkip(name) {
			results[name] = testing.BenchmarkResult{}
			printResult(name, results[name], nil)
			continue
		}
		timer := gometrics.GetOrRegisterTimer(name, perfRegistry)
		bench := benchmarks[name]
		results[name] = testing.Benchmark(func(b *testing.B) {
			b.SetParallelism(perfNumThreads)
			bench(b, timer)
		})
		printResult(name, results[name], timer)
	}

	// Write results to csv if requested
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

func benchSet(b *testing.B, timer gometrics.Timer) {
	getKey, iter := getKeys("set")
	b.Cleanup(func() { deleteKeys("set", iter) })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			start := time.Now()
			if err := kvStore.Insert(getKey(counter), "test"); err != nil {
				log.Printf("(set) - error setting key: %v\n", err)
			}
			timer.UpdateSince(start)
			counter++
		}
	})
}

func benchSetLarge(b *testing.B, timer gometrics.Timer) {
	largeValue := strings.Repeat("x", perfLargeValueSizeKB*1024)
	getKey, iter := getKeys("set-large")
	b.Cleanup(func() { deleteKeys("set-large", iter) })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			start := time.Now()
			if err := kvStore.Insert(getKey(counter), largeValue); err != nil {
				log.Printf("(set-large) - error setting key: %v", err)
			}
			timer.UpdateSince(start)
			counter++
		}
	})
}

func benchGet(b *testing.B, timer gometrics.Timer) {
	getKey, iter := getKeys("get")
	insertKeys("get", iter, "test")
	b.Cleanup(func() { deleteKeys("get", iter) })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			start := time.Now()
			if _, err := kvStore.Get(getKey(counter)); err != nil {
				log.Printf("(get) - error getting key: %v\n", err)
			}
			timer.UpdateSince(start)
			counter++
		}
	})
}

// all threads alter the same key
func benchAlter(b *testing.B, timer gometrics.Timer) {
	key := fmt.Sprintf("%s-alter", perfKeyPrefix)
	if err := kvStore.Insert(key, "0"); err != nil {
		b.Fatalf("(alter) - error setting key: %v", err)
	}
	b.Cleanup(func() { _ = kvStore.Delete(key) })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			start := time.Now()
			if err := kvStore.Alter(key, incrString); err != nil {
				log.Printf("(alter) - error altering key: %v\n", err)
			}
			timer.UpdateSince(start)
		}
	})
}

// every thread alters its own key
func benchAlterDisjoint(b *testing.B, timer gometrics.Timer) {
	getKey, iter := getKeys("alter-disjoint")
	b.Cleanup(func() { deleteKeys("alter-disjoint", iter) })

	var worker atomic.Int64
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		key := getKey(int(worker.Add(1)))
		for pb.Next() {
			start := time.Now()
			if err := kvStore.AlterWithDefault(key, "0", incrString); err != nil {
				log.Printf("(alter-disjoint) - error altering key: %v\n", err)
			}
			timer.UpdateSince(start)
		}
	})
}

func benchMixed(b *testing.B, timer gometrics.Timer) {
	getKey, iter := getKeys("mixed")
	insertKeys("mixed", iter, "0")
	b.Cleanup(func() { deleteKeys("mixed", iter) })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			key := getKey(counter)
			start := time.Now()
			var err error
			switch counter % 4 {
			case 0: // set
				err = kvStore.Insert(key, "0")
			case 1: // get
				_, err = kvStore.Get(key)
			case 2: // alter
				err = kvStore.AlterWithDefault(key, "0", incrString)
			case 3: // has
				_, err = kvStore.Contains(key)
			}
			timer.UpdateSince(start)

			if err != nil {
				log.Printf("(mixed) - error performing operation (%d): %v\n", counter%4, err)
			}
			counter++
		}
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	// Check if the test is in the skip list
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// incrString increments an integer value stored as text
func incrString(old string) string {
	n, _ := strconv.Atoi(old)
	return strconv.Itoa(n + 1)
}

// creates an array of test keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, perfKeySpread)
	for i := 0; i < perfKeySpread; i++ {
		keys[i] = fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%perfKeySpread]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

func insertKeys(test string, iter func(func(string)), value string) {
	iter(func(k string) {
		if err := kvStore.Insert(k, value); err != nil {
			log.Printf("(%s) - error setting key: %v\n", test, err)
		}
	})
}

// deleteKeys removes the test keys, keys that were never written are fine
func deleteKeys(test string, iter func(func(string))) {
	iter(func(k string) {
		if ok, _ := kvStore.Contains(k); !ok {
			return
		}
		if err := kvStore.Delete(k); err != nil {
			log.Printf("(%s) - error deleting key: %v\n", test, err)
		}
	})
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult, timer gometrics.Timer) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
	if timer != nil && timer.Count() > 0 {
		p := timer.Percentiles([]float64{0.5, 0.99})
		fmt.Printf("\tp50=%s p99=%s", time.Duration(p[0]), time.Duration(p[1]))
	}
	fmt.Println()
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	config := util.GetConfig()

	// Write header
	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50", "P99", "Skipped",
		"Root", "Codec", "Compress",
		"Threads", "LargeValueSizeKB", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for _, test := range perfTests {
		result := results[test]
		var nsPerOp float64
		var opsPerSec float64
		var p50, p99 float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
			ps := gometrics.GetOrRegisterTimer(test, perfRegistry).Percentiles([]float64{0.5, 0.99})
			p50, p99 = ps[0], ps[1]
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			time.Duration(p50).String(),
			time.Duration(p99).String(),
			skipped,
			config.Root,
			config.Codec,
			strconv.FormatBool(config.Compress),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
