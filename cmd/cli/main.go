package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/himanishpuri/EchoAlign/pkg/echoalign"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/model"
	"github.com/himanishpuri/EchoAlign/pkg/echoalign/storage"
	"github.com/himanishpuri/EchoAlign/pkg/logger"
)

// Global flags
var (
	configPath string
	dbPath     string
	tempDir    string
	sampleRate int
	maxOffset  float64
)

func init() {
	flag.StringVar(&configPath, "config", os.Getenv("ECHOALIGN_CONFIG"), "Path to a TOML config file")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("ECHOALIGN_DB_PATH", ""), "Path to the SQLite report database (empty disables persistence)")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("ECHOALIGN_TEMP_DIR", os.TempDir()), "Directory for temporary audio conversion files")
	flag.IntVar(&sampleRate, "rate", 11025, "Internal analysis sample rate")
	flag.Float64Var(&maxOffset, "max-offset", 0, "Maximum plausible offset in seconds (0 = half the analyzed span)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// createService creates a new EchoAlign service with configured options
func createService() (echoalign.Service, error) {
	opts := []echoalign.Option{
		echoalign.WithTempDir(tempDir),
		echoalign.WithSampleRate(sampleRate),
		echoalign.WithMaxOffset(maxOffset),
	}
	if dbPath != "" {
		opts = append(opts, echoalign.WithDBPath(dbPath))
	}
	if configPath != "" {
		opts = append(opts, echoalign.WithConfigFile(configPath))
	}
	return echoalign.NewService(opts...)
}

func main() {
	log := logger.GetLogger()

	printBanner()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	log.Infof("Executing command: %s", command)

	switch command {
	case "analyze":
		handleAnalyze()
	case "batch":
		handleBatch()
	case "history":
		handleHistory()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
   ____     _            _    _ _
  | ____|__| |__   ___  / \  | (_) __ _ _ __
  |  _| / _| '_ \ / _ \/ _ \ | | |/ _| | '_ \
  | |__| (_| | | | (_) / ___ \| | | (_| | | | |
  |_____\__|_| |_|\___/_/   \_\_|_|\__, |_| |_|
                                   |___/
           Audio Offset Detection CLI
`
	fmt.Println(banner)
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  echoalign analyze <master> <dub> [flags]     Detect the offset between two tracks")
	fmt.Println("  echoalign batch <pairs-file> [flags]         Analyze a file of master<TAB>dub pairs")
	fmt.Println("  echoalign history [-limit N] [flags]         Show recent persisted analyses")
	fmt.Println()
	fmt.Println("Global flags: -config, -db, -temp, -rate, -max-offset")
}

func handleAnalyze() {
	log := logger.GetLogger()

	args := os.Args[2:]
	var paths []string
	var flagArgs []string
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			flagArgs = append(flagArgs, args[i:]...)
			break
		}
		paths = append(paths, arg)
	}

	analyzeCmd := flag.NewFlagSet("analyze", flag.ExitOnError)
	timeout := analyzeCmd.Duration("timeout", 10*time.Minute, "Analysis timeout")
	analyzeCmd.Parse(flagArgs)

	if len(paths) != 2 {
		fmt.Println("Error: master and dub paths are required")
		fmt.Println("Usage: echoalign analyze <master> <dub> [--timeout 10m]")
		os.Exit(1)
	}

	svc, err := createService()
	if err != nil {
		fmt.Printf("Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	res, err := svc.Analyze(ctx, paths[0], paths[1])
	if err != nil {
		if res != nil {
			printResult(res)
		}
		fmt.Printf("Analysis failed: %v\n", err)
		log.Errorf("Analysis failed: %v", err)
		os.Exit(1)
	}

	printResult(res)
}

func printResult(res *model.ConsensusResult) {
	fmt.Println()
	fmt.Printf("Offset:     %s (%d samples at native rate)\n", logger.FormatSeconds(res.OffsetSeconds), res.OffsetSamples)
	fmt.Printf("Confidence: %.2f   Agreement: %.2f   Status: %s\n", res.Confidence, res.MethodAgreement, res.Status)
	if res.Drift != model.DriftUnknown {
		fmt.Printf("Drift:      %s (%d chunks)\n", res.Drift, len(res.Chunks))
	}
	if res.Decision != nil {
		fmt.Printf("Verification: %s", res.Decision.Outcome)
		if len(res.Decision.Triggers) > 0 {
			fmt.Printf(" (triggers: %s)", strings.Join(res.Decision.Triggers, ", "))
		}
		fmt.Println()
	}
	fmt.Println("Frame counts:")
	for _, rate := range []string{"23.976", "24", "25", "29.97", "30"} {
		fmt.Printf("  %7s fps: %+d frames\n", rate, res.FrameCounts[rate])
	}
	fmt.Println("Methods:")
	for _, m := range res.Methods {
		tag := ""
		if m.Advisory {
			tag = " (advisory)"
		}
		fmt.Printf("  %-13s offset=%s confidence=%.2f prominence=%.1f%s\n",
			m.Method, logger.FormatSeconds(m.OffsetSeconds), m.Confidence, m.PeakProminence, tag)
	}
	for method, failure := range res.Failures {
		fmt.Printf("  %-13s failed: %v\n", method, failure)
	}
}

func handleBatch() {
	log := logger.GetLogger()

	args := os.Args[2:]
	var pairsPath string
	var flagArgs []string
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			flagArgs = append(flagArgs, args[i:]...)
			break
		}
		if pairsPath == "" {
			pairsPath = arg
		}
	}

	batchCmd := flag.NewFlagSet("batch", flag.ExitOnError)
	devices := batchCmd.Int("devices", 1, "Number of compute devices")
	timeout := batchCmd.Duration("timeout", time.Hour, "Batch timeout")
	batchCmd.Parse(flagArgs)

	if pairsPath == "" {
		fmt.Println("Error: pairs file required (one 'master<TAB>dub' pair per line)")
		fmt.Println("Usage: echoalign batch <pairs-file> [--devices N]")
		os.Exit(1)
	}

	jobs, err := readPairs(pairsPath)
	if err != nil {
		fmt.Printf("Failed to read pairs file: %v\n", err)
		os.Exit(1)
	}
	log.Infof("Loaded %d jobs from %s", len(jobs), pairsPath)

	opts := []echoalign.Option{
		echoalign.WithTempDir(tempDir),
		echoalign.WithSampleRate(sampleRate),
		echoalign.WithMaxOffset(maxOffset),
		echoalign.WithDeviceCount(*devices),
	}
	if dbPath != "" {
		opts = append(opts, echoalign.WithDBPath(dbPath))
	}
	if configPath != "" {
		opts = append(opts, echoalign.WithConfigFile(configPath))
	}
	svc, err := echoalign.NewService(opts...)
	if err != nil {
		fmt.Printf("Failed to create service: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	results := svc.AnalyzeBatch(ctx, jobs)
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Printf("job %d (device %d): FAILED: %v\n", r.JobID, r.Device, r.Err)
			continue
		}
		fmt.Printf("job %d (device %d): offset=%s confidence=%.2f status=%s\n",
			r.JobID, r.Device, logger.FormatSeconds(r.Result.OffsetSeconds), r.Result.Confidence, r.Result.Status)
	}
	fmt.Printf("\n%d/%d jobs succeeded\n", len(results)-failed, len(results))
	if failed > 0 {
		os.Exit(1)
	}
}

func readPairs(path string) ([]echoalign.BatchJob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var jobs []echoalign.BatchJob
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed line %q: expected master<TAB>dub", line)
		}
		jobs = append(jobs, echoalign.BatchJob{
			ID:         uint64(len(jobs)),
			MasterPath: parts[0],
			DubPath:    parts[1],
		})
	}
	return jobs, scanner.Err()
}

func handleHistory() {
	args := os.Args[2:]
	historyCmd := flag.NewFlagSet("history", flag.ExitOnError)
	limit := historyCmd.Int("limit", 20, "Number of recent jobs to show")
	historyCmd.Parse(args)

	if dbPath == "" {
		dbPath = storage.DefaultDBFile
	}
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		fmt.Printf("Failed to open report database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	jobs, err := db.ListJobs(*limit)
	if err != nil {
		fmt.Printf("Failed to list jobs: %v\n", err)
		os.Exit(1)
	}
	if len(jobs) == 0 {
		fmt.Println("No persisted analyses yet.")
		return
	}

	for _, job := range jobs {
		fmt.Printf("%s  %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"), job.ID)
		fmt.Printf("  master: %s\n  dub:    %s\n", job.MasterPath, job.DubPath)
		fmt.Printf("  offset=%+.3fs confidence=%.2f status=%s verification=%s\n",
			job.OffsetSeconds, job.Confidence, job.Status, job.VerificationOutcome)
	}
}
