// Command scenario loads one or more scenario script files from a
// directory and runs each through the scenario driver, printing a
// result summary per file.
//
// Usage:
//
//	scenario -dir ./scenarios
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abhivetukuri/marketmaker/internal/orderbook"
	"github.com/abhivetukuri/marketmaker/internal/position"
	"github.com/abhivetukuri/marketmaker/internal/scenario"
)

func main() {
	dir := flag.String("dir", "./scenarios", "Directory containing .txt scenario scripts")
	matching := flag.Bool("enable-matching", false, "Enable market/slippage-market matching before running scripts")
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	files, err := scenarioFiles(*dir)
	if err != nil {
		log.Fatalf("scan %s: %v", *dir, err)
	}
	if len(files) == 0 {
		log.Fatalf("no .txt scenario files found in %s", *dir)
	}

	books := orderbook.NewRegistry()
	positions := position.NewTracker(position.DefaultLimits())
	runner := scenario.NewRunner(books, positions)
	runner.SetMatchingEnabled(*matching)

	failures := 0
	for _, path := range files {
		f, err := os.Open(path)
		if err != nil {
			log.Printf("%s: open: %v", path, err)
			failures++
			continue
		}

		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		result := runner.RunScenario(name, f)
		f.Close()

		printResult(path, result)
		if !result.Passed {
			failures++
		}
	}

	stats := runner.Stats()
	fmt.Printf("\n%d scenarios, %d passed, %d failed (avg %.3fms)\n",
		stats.TotalScenarios, stats.PassedScenarios, stats.FailedScenarios, stats.AvgExecutionTimeMs)

	if failures > 0 {
		os.Exit(1)
	}
}

func printResult(path string, r scenario.Result) {
	status := "PASS"
	if !r.Passed {
		status = "FAIL"
	}
	fmt.Printf("[%s] %-40s orders=%-4d trades=%-4d %.3fms",
		status, path, r.OrdersProcessed, r.TradesExecuted, r.ExecutionTimeMs)
	if r.ErrorMessage != "" {
		fmt.Printf("  error: %s", r.ErrorMessage)
	}
	fmt.Println()
}

func scenarioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
