package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/seistools/phasealign/internal/config"
	"github.com/seistools/phasealign/internal/interact"
	"github.com/seistools/phasealign/internal/phase"
	"github.com/seistools/phasealign/internal/service"
	"github.com/seistools/phasealign/internal/storage"
	"github.com/seistools/phasealign/pkg/logger"
	"github.com/seistools/phasealign/pkg/utils"
)

// Global flags
var (
	dbPath string
	outDir string
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
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
	case "align":
		handleAlign()
	case "list":
		handleList()
	case "show":
		handleShow()
	case "delete":
		handleDelete()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
        _                          _ _
  _ __ | |__   __ _ ___  ___  __ _| (_) __ _ _ __
 | '_ \| '_ \ / _` + "`" + ` / __|/ _ \/ _` + "`" + ` | | |/ _` + "`" + ` | '_ \
 | |_) | | | | (_| \__ \  __/ (_| | | | (_| | | | |
 | .__/|_| |_|\__,_|___/\___|\__,_|_|_|\__, |_| |_|
 |_|                                   |___/

       Relative Arrival-Time Alignment Tool
`
	fmt.Println(banner)
}

func printUsage() {
	fmt.Println(`Usage:
  phasealign align -data <dir> [-config <file>] [-tt <file>] [-out <dir>] [-interactive]
  phasealign list
  phasealign show <run-id>
  phasealign delete <run-id>

Global flags:
  -db   path to the sqlite run catalog (env PHASEALIGN_DB_PATH)
  -out  directory for diagnostic tables (default .)`)
}

func globalFlags(fs *flag.FlagSet) {
	fs.StringVar(&dbPath, "db", getEnvOrDefault("PHASEALIGN_DB_PATH", storage.DefaultDBFile), "Path to the sqlite run catalog")
	fs.StringVar(&outDir, "out", ".", "Directory for diagnostic tables")
}

func openDB() *storage.DBClient {
	log := logger.GetLogger()
	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		log.Fatalf("opening run catalog: %v", err)
	}
	return db
}

func handleAlign() {
	log := logger.GetLogger()

	fs := flag.NewFlagSet("align", flag.ExitOnError)
	globalFlags(fs)
	dataDir := fs.String("data", "", "Directory of waveform records (required)")
	cfgPath := fs.String("config", "", "Run configuration file (KEY=VALUE)")
	ttPath := fs.String("tt", "", "Travel-time table for arrival prediction")
	interactive := fs.Bool("interactive", false, "Pause for window and cutoff adjustment")
	fs.Parse(os.Args[2:])

	if *dataDir == "" {
		fmt.Println("Error: -data is required")
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if *interactive {
		cfg.Interactive = true
	}

	var tt *phase.Table
	if *ttPath != "" {
		tt, err = phase.LoadTable(*ttPath)
		if err != nil {
			log.Fatalf("travel-time table: %v", err)
		}
	}

	db := openDB()
	defer db.Close()

	var ui interact.Interactor = interact.Auto{}
	if cfg.Interactive {
		ui = interact.NewTerminal()
	}

	svc := service.New(cfg, service.Options{
		DB:          db,
		UI:          ui,
		TravelTimes: tt,
		OutDir:      outDir,
	})

	summary, err := svc.Align(context.Background(), *dataDir)
	if err != nil {
		log.Fatalf("alignment run failed: %v", err)
	}

	fmt.Printf("\nRun %s: %s records, %d bands\n",
		utils.ShortID(summary.RunID), humanize.Comma(int64(summary.Records)), len(summary.Bands))
	for i, b := range summary.Bands {
		aligned := 0
		for _, a := range b.Alignments {
			if a.Aligned {
				aligned++
			}
		}
		fmt.Printf("  band %2d  %7.4f-%7.4f Hz  kept=%-3d clusters=%-3d aligned=%d\n",
			i, b.Band.Low, b.Band.High, b.Kept, b.Clusters, aligned)
	}
}

func handleList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	globalFlags(fs)
	fs.Parse(os.Args[2:])

	db := openDB()
	defer db.Close()

	runs, err := db.ListRuns()
	if err != nil {
		logger.GetLogger().Fatalf("%v", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return
	}
	for _, r := range runs {
		fmt.Printf("%s  %-4s event %s  %s records, %d bands  (%s)\n",
			utils.ShortID(r.ID), r.Phase, r.Event,
			humanize.Comma(int64(r.Records)), r.Bands, humanize.Time(r.CreatedAt))
	}
}

func runIDArg(fs *flag.FlagSet) string {
	args := fs.Args()
	if len(args) != 1 {
		fmt.Println("Error: exactly one run id expected")
		os.Exit(1)
	}
	return args[0]
}

func resolveRunID(db *storage.DBClient, prefix string) string {
	runs, err := db.ListRuns()
	if err != nil {
		logger.GetLogger().Fatalf("%v", err)
	}
	for _, r := range runs {
		if r.ID == prefix || utils.ShortID(r.ID) == prefix {
			return r.ID
		}
	}
	logger.GetLogger().Fatalf("no run matching %q", prefix)
	return ""
}

func handleShow() {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	globalFlags(fs)
	fs.Parse(os.Args[2:])

	db := openDB()
	defer db.Close()

	runID := resolveRunID(db, runIDArg(fs))
	results, err := db.GetRunResults(runID)
	if err != nil {
		logger.GetLogger().Fatalf("%v", err)
	}
	if len(results) == 0 {
		fmt.Println("No results for run")
		return
	}
	fmt.Printf("%-4s %-16s %-7s %-9s %-9s %-4s %-9s %s\n",
		"band", "record", "cluster", "shift", "amp", "pol", "residual", "status")
	for _, r := range results {
		status := "aligned"
		if !r.Aligned {
			status = "unaligned"
		}
		fmt.Printf("%-4d %-16s %-7d %-9.4f %-9.4f %-4d %-9.4f %s\n",
			r.Band, r.Record, r.ClusterID, r.TimeShift, r.AmpScale, r.Polarity, r.Residual, status)
	}
}

func handleDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	globalFlags(fs)
	fs.Parse(os.Args[2:])

	db := openDB()
	defer db.Close()

	runID := resolveRunID(db, runIDArg(fs))
	if err := db.DeleteRun(runID); err != nil {
		logger.GetLogger().Fatalf("%v", err)
	}
	fmt.Printf("Deleted run %s\n", utils.ShortID(runID))
}
