package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"gsadv/internal/browser"
	"gsadv/internal/config"
	"gsadv/internal/links"
	"gsadv/internal/mapping"
	"gsadv/internal/normalize"
	"gsadv/internal/pipeline"
	"gsadv/internal/storage"
	"gsadv/internal/workbook"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log := newLogger()
	defer log.Sync()

	cmd := os.Args[1]
	switch cmd {
	case "scrape:prices":
		runScrape(cfg, log, pipeline.PricePolicy(cfg), os.Args[2:])
	case "scrape:sins":
		runScrape(cfg, log, pipeline.SINPolicy(cfg), os.Args[2:])
	case "links:generate":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		workbookPath := fs.String("workbook", cfg.WorkbookPath, "xlsx path")
		_ = fs.Parse(os.Args[2:])

		wb, table, err := workbook.Open(*workbookPath, cfg.BackupDir, cfg.BackupsKept)
		must(err)
		linksCol, ok := table.FindColumn("links")
		if !ok {
			must(fmt.Errorf("required column not found: links"))
		}
		mfrCol, ok := table.FindColumn("manufacturer")
		if !ok {
			must(fmt.Errorf("required column not found: manufacturer"))
		}
		contractCol, ok := table.FindColumn("GSA Contract 1", "contract#:", "contract")
		if !ok {
			must(fmt.Errorf("required column not found: contract"))
		}
		generated := links.Generate(table, linksCol, mfrCol, contractCol)
		must(wb.Save(table))
		fmt.Printf("direct links generated rows=%d links=%d\n", table.Len(), generated)
	case "mapping:build":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "unique manufacturer list (txt, one per line)")
		output := fs.String("output", cfg.MappingPath, "output CSV path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}

		names, err := mapping.ReadNames(*input)
		must(err)
		rows := mapping.Build(names)
		must(mapping.WriteCSV(*output, rows))
		nonEmpty := 0
		for _, row := range rows {
			if row[1] != "" {
				nonEmpty++
			}
		}
		fmt.Printf("mapping written names=%d roots=%d output=%s\n", len(rows), nonEmpty, *output)
	case "report:missing":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		mode := fs.String("mode", pipeline.ModeSINs, "prices|sins")
		workbookPath := fs.String("workbook", cfg.WorkbookPath, "xlsx path")
		_ = fs.Parse(os.Args[2:])

		_, table, err := workbook.Open(*workbookPath, cfg.BackupDir, cfg.BackupsKept)
		must(err)
		policy, err := policyForMode(cfg, *mode)
		must(err)
		itemCol, _ := table.FindColumn("item number")

		missing := pipeline.MissingRows(table, policy)
		for _, i := range missing {
			item := ""
			if itemCol != "" {
				item = table.Get(i, itemCol)
			}
			// +2: one for the header row, one for 1-based sheet rows.
			fmt.Printf("row %d item=%s\n", i+2, item)
		}
		fmt.Printf("missing rows: %d of %d\n", len(missing), table.Len())
	default:
		usage()
		os.Exit(1)
	}
}

func runScrape(cfg config.Config, log *zap.Logger, policy pipeline.QuotaPolicy, args []string) {
	fs := flag.NewFlagSet("scrape:"+policy.Mode, flag.ExitOnError)
	start := fs.Int("start", 0, "first row (0-based, data rows)")
	end := fs.Int("end", -1, "last row inclusive, -1 = end of sheet")
	item := fs.String("item", "", "process only the row with this item number")
	resume := fs.Bool("resume", false, "continue from the last saved cursor")
	test := fs.Bool("test", false, "process only the first 10 rows")
	_ = fs.Parse(args)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	wb, table, err := workbook.Open(cfg.WorkbookPath, cfg.BackupDir, cfg.BackupsKept)
	must(err)

	norm := normalize.New()
	// A missing mapping silently weakens matching for every row, so it
	// aborts the run before anything is written.
	m, err := mapping.Load(cfg.MappingPath, norm)
	must(err)
	log.Info("manufacturer mapping loaded", zap.Int("entries", m.Len()))
	matcher := pipeline.NewMatcher(cfg, norm, m)

	rng, err := resolveRange(table, db, policy.Mode, *start, *end, *item, *resume, *test)
	must(err)

	session, err := browser.NewSession(cfg, log)
	must(err)
	defer session.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	// First signal asks the processor to stop at the next row
	// boundary; a second one kills the process outright.
	go func() {
		<-ctx.Done()
		stop()
	}()

	proc := pipeline.NewProcessor(cfg, log, table, wb, db, session, matcher, policy)
	cp, err := proc.Run(ctx, rng)
	if err != nil && ctx.Err() == nil {
		must(err)
	}

	fmt.Printf("scrape %s done: cursor=%d matched=%d partial=%d notFound=%d skipped=%d failed=%d\n",
		policy.Mode, cp.Cursor, cp.Matched, cp.Partial, cp.NotFound, cp.Skipped, cp.Failed)
	if ctx.Err() != nil {
		fmt.Println("interrupted; progress saved, rerun with -resume to continue")
	}
}

func resolveRange(table *workbook.Table, db *storage.DB, mode string, start, end int, item string, resume, test bool) (pipeline.RowRange, error) {
	if item != "" {
		itemCol, ok := table.FindColumn("item number")
		if !ok {
			return pipeline.RowRange{}, fmt.Errorf("required column not found: item number")
		}
		for i := 0; i < table.Len(); i++ {
			if strings.EqualFold(strings.TrimSpace(table.Get(i, itemCol)), item) {
				return pipeline.RowRange{Start: i, End: i}, nil
			}
		}
		return pipeline.RowRange{}, fmt.Errorf("item not found: %s", item)
	}
	if test {
		last := 9
		if table.Len() <= last {
			last = table.Len() - 1
		}
		return pipeline.RowRange{Start: 0, End: last}, nil
	}
	if resume {
		cursor, err := db.GetMetadata("cursor:" + mode)
		if err != nil {
			return pipeline.RowRange{}, err
		}
		if cursor != nil {
			if parsed, err := strconv.Atoi(*cursor); err == nil {
				return pipeline.RowRange{Start: parsed, End: end}, nil
			}
		}
		return pipeline.RowRange{Start: 0, End: end}, nil
	}
	return pipeline.RowRange{Start: start, End: end}, nil
}

func policyForMode(cfg config.Config, mode string) (pipeline.QuotaPolicy, error) {
	switch mode {
	case pipeline.ModePrices:
		return pipeline.PricePolicy(cfg), nil
	case pipeline.ModeSINs:
		return pipeline.SINPolicy(cfg), nil
	default:
		return pipeline.QuotaPolicy{}, fmt.Errorf("unsupported mode: %s", mode)
	}
}

func newLogger() *zap.Logger {
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		log, _ := zap.NewProduction()
		return log
	}
	log, _ := zap.NewDevelopment()
	return log
}

func usage() {
	fmt.Println("usage: gsadv <command>")
	fmt.Println("commands:")
	fmt.Println("  scrape:prices [-start=0] [-end=-1] [-item=...] [-resume] [-test]")
	fmt.Println("  scrape:sins   [-start=0] [-end=-1] [-item=...] [-resume] [-test]")
	fmt.Println("  links:generate [-workbook=...]")
	fmt.Println("  mapping:build -input=unique_manufacturers.txt [-output=...]")
	fmt.Println("  report:missing [-mode=prices|sins] [-workbook=...]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
