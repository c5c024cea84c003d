package bench

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/rowan/cmd/util"
	"github.com/ValentinKolb/rowan/lib/btree"
	"github.com/ValentinKolb/rowan/lib/txn"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// BenchCmd represents the bench command
	BenchCmd = &cobra.Command{
		Use:     "bench",
		Short:   "Benchmark the mutation engine in-process",
		Long:    "Runs a set of write, read and mixed workloads directly against the engine and reports per-operation timings.",
		RunE:    run,
		PreRunE: processBenchConfig,
	}

	benchThreads   = 10
	benchKeys      = 1000
	benchRows      = 1000
	benchValueSize = 128
	benchSkip      = make([]string, 0)
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// add flags
	key := "threads"
	BenchCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines to use for the workloads"))
	key = "keys"
	BenchCmd.Flags().Int(key, 1000, util.WrapString("How many different keys to use for the workloads"))
	key = "rows"
	BenchCmd.Flags().Int(key, 1000, util.WrapString("How many rows the preloaded page image holds"))
	key = "value-size"
	BenchCmd.Flags().Int(key, 128, util.WrapString("Size of the written values (in bytes)"))
	key = "skip"
	BenchCmd.Flags().String(key, "", util.WrapString("Workloads to skip (comma separated - e.g. insert,get)"))
	key = "seed"
	BenchCmd.Flags().Int64(key, 0, util.WrapString("Deterministic seed for the engine (0 selects a random one)"))
	key = "csv"
	BenchCmd.Flags().String(key, "", util.WrapString("Optional path to save workload results as CSV"))
	key = "stats"
	BenchCmd.Flags().Bool(key, false, util.WrapString("Print engine statistics after the workloads"))
	key = "metrics"
	BenchCmd.Flags().Bool(key, false, util.WrapString("Dump engine metrics in Prometheus format after the workloads"))
}

func processBenchConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	benchThreads = viper.GetInt("threads")
	benchKeys = viper.GetInt("keys")
	benchRows = viper.GetInt("rows")
	benchValueSize = viper.GetInt("value-size")
	if skip := viper.GetString("skip"); skip != "" {
		benchSkip = strings.Split(skip, ",")
	}

	return nil
}

func run(_ *cobra.Command, _ []string) error {

	fmt.Println("Benchmark tool for the rowan mutation engine")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Threads: %d\n", benchThreads)
	fmt.Printf("Keys: %d\n", benchKeys)
	fmt.Printf("Rows: %d\n", benchRows)
	fmt.Printf("Value size: %d bytes\n", benchValueSize)
	fmt.Println()

	// Set up the engine: one leaf page preloaded with a sorted row image,
	// the way a page looks right after it was read into memory.
	m := txn.NewManager(util.GetSeed())
	tree := btree.New(m, btree.DefaultOptions())
	defer func() { _ = tree.Close() }()

	rows := make([]btree.Row, benchRows)
	for i := range rows {
		rows[i] = btree.Row{
			Key:   []byte(fmt.Sprintf("row-%09d", i)),
			Value: []byte("image"),
		}
	}
	tree.NewLeafPage(rows)

	value := make([]byte, benchValueSize)

	fmt.Println("starting workloads...")

	// Create results map
	results := make(map[string]testing.BenchmarkResult)

	var conflicts atomic.Uint64

	// put commits one write in its own transaction, counting conflicts
	// instead of failing the workload on them.
	put := func(name string, key []byte) {
		s := m.Begin()
		if err := tree.Put(s, key, value); err != nil {
			if errors.Is(err, btree.ErrConflict) {
				conflicts.Add(1)
			} else {
				log.Printf("(%s) - error writing key: %v\n", name, err)
			}
			_ = m.Rollback(s)
			return
		}
		if err := m.Commit(s); err != nil {
			log.Printf("(%s) - error committing: %v\n", name, err)
		}
	}

	insertResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("insert") {
			return
		}

		var seq atomic.Uint64

		b.SetParallelism(benchThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				put("insert", []byte(fmt.Sprintf("ins-%012d", seq.Add(1))))
			}
		})
	})

	results["insert"] = insertResult
	printResult("insert", insertResult)

	updateResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("update") {
			return
		}

		// update targets the preloaded row image
		b.SetParallelism(benchThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				put("update", rows[counter%benchRows].Key)
				counter++
			}
		})
	})

	results["update"] = updateResult
	printResult("update", updateResult)

	getResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("get") {
			return
		}

		// preload the keys to read
		getKey, iter := getKeys("get")
		iter(func(k string) {
			put("get", []byte(k))
		})

		b.SetParallelism(benchThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				s := m.Begin()
				if _, ok := tree.Get(s, []byte(getKey(counter))); !ok {
					log.Printf("(get) - missing key %s\n", getKey(counter))
				}
				if err := m.Commit(s); err != nil {
					log.Printf("(get) - error committing: %v\n", err)
				}
				counter++
			}
		})
	})

	results["get"] = getResult
	printResult("get", getResult)

	deleteResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("delete") {
			return
		}

		// every iteration writes a fresh key and deletes it again
		var seq atomic.Uint64

		b.SetParallelism(benchThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				key := []byte(fmt.Sprintf("del-%012d", seq.Add(1)))
				put("delete", key)

				s := m.Begin()
				if err := tree.Remove(s, key); err != nil {
					log.Printf("(delete) - error deleting key: %v\n", err)
					_ = m.Rollback(s)
					continue
				}
				if err := m.Commit(s); err != nil {
					log.Printf("(delete) - error committing: %v\n", err)
				}
			}
		})
	})

	results["delete"] = deleteResult
	printResult("delete", deleteResult)

	scanResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("scan") {
			return
		}

		b.SetParallelism(benchThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				s := m.Begin()
				it := tree.NewIterator(s, nil)
				n := 0
				for it.Next() {
					n++
				}
				if n == 0 {
					log.Println("(scan) - empty iteration")
				}
				if err := m.Commit(s); err != nil {
					log.Printf("(scan) - error committing: %v\n", err)
				}
			}
		})
	})

	results["scan"] = scanResult
	printResult("scan", scanResult)

	// The mixed workload additionally samples per-operation latencies so
	// the tail behavior under contention is visible, not just the mean.
	latency := gometrics.NewCustomTimer(
		gometrics.NewHistogram(gometrics.NewExpDecaySample(1028, 0.015)),
		gometrics.NewMeter(),
	)
	defer latency.Stop()

	mixedResult := testing.Benchmark(func(b *testing.B) {
		if shouldSkip("mixed") {
			return
		}

		getKey, iter := getKeys("mixed")
		iter(func(k string) {
			put("mixed", []byte(k))
		})

		b.SetParallelism(benchThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				key := []byte(getKey(counter))
				start := time.Now()
				switch counter % 4 {
				case 0: // write
					put("mixed", key)
				case 1: // read
					s := m.Begin()
					_, _ = tree.Get(s, key)
					_ = m.Commit(s)
				case 2: // delete (the key may already be gone)
					s := m.Begin()
					if err := tree.Remove(s, key); err != nil {
						_ = m.Rollback(s)
					} else {
						_ = m.Commit(s)
					}
				case 3: // rewrite
					put("mixed", key)
				}
				latency.UpdateSince(start)
				counter++
			}
		})
	})

	results["mixed"] = mixedResult
	printResult("mixed", mixedResult)

	if !shouldSkip("mixed") {
		ps := latency.Percentiles([]float64{0.5, 0.95, 0.99})
		fmt.Printf("%-20sp50 %s\tp95 %s\tp99 %s\n", "mixed latency",
			time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]))
	}

	fmt.Printf("\nwrite conflicts: %d\n", conflicts.Load())

	// Print the engine's view of the workload if requested
	if viper.GetBool("stats") {
		stats, err := json.MarshalIndent(tree.Stats(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Printf("\nEngine statistics:\n%s\n", stats)
	}
	if viper.GetBool("metrics") {
		fmt.Println("\nEngine metrics:")
		tree.WriteMetrics(os.Stdout)
	}

	// Write results to csv if specified
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
// Helper
// --------------------------------------------------------------------------

func shouldSkip(workload string) bool {
	// Check if the workload is in the skip list
	for _, skip := range benchSkip {
		if workload == skip {
			return true
		}
	}
	return false
}

// creates an array of workload keys and functions to work with them
func getKeys(prefix string) (func(int) string, func(func(string))) {
	keys := make([]string, benchKeys)
	for i := 0; i < benchKeys; i++ {
		keys[i] = fmt.Sprintf("bench-%s-%d", prefix, i)
	}

	// Function to get a key by index (with wraparound)
	getKey := func(i int) string {
		return keys[i%benchKeys]
	}

	// Function to iterate over all keys and apply a function to each
	iterateKeys := func(fn func(string)) {
		for _, key := range keys {
			fn(key)
		}
	}

	return getKey, iterateKeys
}

// printResult prints the result of a workload in a formatted way
func printResult(workload string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", workload)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	// Print the formatted result
	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", workload, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes workload results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Workload", "NsPerOp", "DurationPerOp", "OpsPerSec", "Skipped",
		"Threads", "Keys", "Rows", "ValueSize", "Seed",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write workload results
	for workload, result := range results {
		var nsPerOp float64
		var opsPerSec float64
		var skipped string

		if result.NsPerOp() == 0 {
			skipped = "true"
			nsPerOp = 0
			opsPerSec = 0
		} else {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			workload,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			skipped,
			strconv.Itoa(benchThreads),
			strconv.Itoa(benchKeys),
			strconv.Itoa(benchRows),
			strconv.Itoa(benchValueSize),
			strconv.FormatUint(util.GetSeed(), 10),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for workload %s: %v", workload, err)
		}
	}

	return nil
}
