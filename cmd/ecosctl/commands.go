package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"findash/internal/backend"
	"findash/internal/cli"
	"findash/internal/core"
	"findash/internal/ecos"
	"findash/internal/log"
	"findash/internal/services"
	"findash/internal/sheets"
	"findash/internal/sheets/memory"
)

func commands(logger *log.Logger) []subcommands.Command {
	return []subcommands.Command{
		&importMetadataCmd{logger: logger},
		&fetchCmd{logger: logger},
		&urlCmd{logger: logger},
		&exportSheetsCmd{logger: logger},
	}
}

// seriesFlags selects either a named series or a raw stat/item/cycle.
type seriesFlags struct {
	series string
	stat   string
	item   string
	cycle  string
	period string
	from   string
	to     string
}

func (s *seriesFlags) register(f *flag.FlagSet, period string) {
	f.StringVar(&s.series, "series", "", "named series key ("+strings.Join(seriesKeys(), ", ")+")")
	f.StringVar(&s.stat, "stat", "", "ECOS stat code, e.g. 731Y001")
	f.StringVar(&s.item, "item", "", "ECOS item code, e.g. 0000001")
	f.StringVar(&s.cycle, "cycle", "D", "cycle: D, M, Q or A")
	f.StringVar(&s.period, "period", period, "look-back preset, e.g. 30d, 1y, all")
	f.StringVar(&s.from, "from", "", "start date YYYYMMDD, overrides -period")
	f.StringVar(&s.to, "to", "", "end date YYYYMMDD, defaults to today")
}

func seriesKeys() []string {
	keys := make([]string, len(ecos.Tracked))
	for i, s := range ecos.Tracked {
		keys[i] = s.Key
	}
	return keys
}

func (s *seriesFlags) window(floor time.Time) (time.Time, time.Time, error) {
	start, end := core.PeriodRange(s.period, time.Now(), floor)
	var err error
	if s.from != "" {
		if start, err = core.ParseDateKey(s.from); err != nil {
			return start, end, err
		}
	}
	if s.to != "" {
		if end, err = core.ParseDateKey(s.to); err != nil {
			return start, end, err
		}
	}
	if start.After(end) {
		return start, end, fmt.Errorf("start %s is after end %s", core.DateKey(start), core.DateKey(end))
	}
	return start, end, nil
}

// named returns the selected series, building an ad hoc one from -stat.
func (s *seriesFlags) named() (ecos.NamedSeries, error) {
	if s.series != "" {
		ns, ok := ecos.LookupSeries(s.series)
		if !ok {
			return ns, fmt.Errorf("unknown series %q", s.series)
		}
		return ns, nil
	}
	if s.stat == "" || s.item == "" {
		return ecos.NamedSeries{}, fmt.Errorf("either -series or both -stat and -item are required")
	}
	cycle, err := core.ParseCycle(s.cycle)
	if err != nil {
		return ecos.NamedSeries{}, err
	}
	return ecos.NamedSeries{
		Key: s.stat + "_" + s.item, Name: s.stat, StatCode: s.stat, Cycle: cycle,
		Items: []ecos.Item{{Code: s.item, Name: s.item}},
	}, nil
}

type importMetadataCmd struct {
	logger      *log.Logger
	concurrency int
	pause       time.Duration
}

func (*importMetadataCmd) Name() string     { return "import-metadata" }
func (*importMetadataCmd) Synopsis() string { return "downloads ECOS table and item lists into SQLite" }
func (*importMetadataCmd) Usage() string {
	return `import-metadata [-concurrency n] [-pause d]:

Downloads the ECOS statistic table list and the item list of every searchable
table, upserting them into the local database.
`
}

func (c *importMetadataCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.concurrency, "concurrency", 4, "parallel item list downloads")
	f.DurationVar(&c.pause, "pause", 200*time.Millisecond, "pause between requests of one worker")
}

func (c *importMetadataCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := cli.LoadAndValidateConfig(c.logger)
	repo := cli.InitSQLite(c.logger, cfg.SQLiteDBPath)
	defer repo.Close()

	imp := services.NewMetadataImport(cli.NewECOS(cfg, c.logger), repo, c.concurrency, c.pause)
	res, err := imp.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: metadata import failed: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("tables: %d, items: %d, failed tables: %d\n", res.Tables, res.Items, res.Failed)
	return subcommands.ExitSuccess
}

type fetchCmd struct {
	logger *log.Logger
	seriesFlags
	asJSON bool
	store  bool
}

func (*fetchCmd) Name() string     { return "fetch" }
func (*fetchCmd) Synopsis() string { return "downloads a series and prints it" }
func (*fetchCmd) Usage() string {
	return `fetch (-series key | -stat code -item code [-cycle D]) [-period 1y | -from YYYYMMDD] [-to YYYYMMDD] [-json] [-store]:

Downloads a series from ECOS, newest period first. With -store a named series
is also synced into the local database.
`
}

func (c *fetchCmd) SetFlags(f *flag.FlagSet) {
	c.seriesFlags.register(f, "1y")
	f.BoolVar(&c.asJSON, "json", false, "print JSON instead of a table")
	f.BoolVar(&c.store, "store", false, "sync the named series into SQLite")
}

func (c *fetchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := cli.LoadAndValidateConfig(c.logger)
	ns, err := c.named()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	start, end, err := c.window(cfg.HistoryFloor())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	client := cli.NewECOS(cfg, c.logger)

	if c.store {
		if c.series == "" {
			fmt.Fprintf(os.Stderr, "Error: -store needs a named -series\n")
			return subcommands.ExitUsageError
		}
		repo := cli.InitSQLite(c.logger, cfg.SQLiteDBPath)
		defer repo.Close()
		n, err := services.NewSeriesSync(client, repo, start).Sync(ctx, ns, end)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: sync %s: %v\n", ns.Key, err)
			return subcommands.ExitFailure
		}
		fmt.Fprintf(os.Stderr, "stored %d rows of %s\n", n, ns.Key)
	}

	table, err := client.FetchWide(ctx, ns, start, end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: fetch %s: %v\n", ns.Key, err)
		return subcommands.ExitFailure
	}
	if c.asJSON {
		out := make([]core.Series, len(table.Columns))
		for i := range table.Columns {
			out[i] = table.Column(i)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}
	printTable(table)
	return subcommands.ExitSuccess
}

func printTable(t *ecos.WideTable) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	header := sheets.SeriesHeader(t)
	for _, h := range header {
		fmt.Fprintf(tw, "%v\t", h)
	}
	fmt.Fprintln(tw)
	for _, r := range t.Rows {
		fmt.Fprintf(tw, "%s\t", r.Time)
		for _, v := range r.Values {
			fmt.Fprintf(tw, "%s\t", strconv.FormatFloat(v, 'f', -1, 64))
		}
		fmt.Fprintln(tw)
	}
	_ = tw.Flush()
}

type urlCmd struct {
	logger *log.Logger
	seriesFlags
}

func (*urlCmd) Name() string     { return "url" }
func (*urlCmd) Synopsis() string { return "prints the ECOS query URL of each item of a series" }
func (*urlCmd) Usage() string {
	return `url (-series key | -stat code -item code [-cycle D]) [-period 1y | -from YYYYMMDD] [-to YYYYMMDD]:

Prints the first-page StatisticSearch URL for every item, for checking in a browser.
`
}

func (c *urlCmd) SetFlags(f *flag.FlagSet) { c.seriesFlags.register(f, "1y") }

func (c *urlCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := cli.LoadAndValidateConfig(c.logger)
	ns, err := c.named()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	start, end, err := c.window(cfg.HistoryFloor())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	client := cli.NewECOS(cfg, c.logger)
	for _, it := range ns.Items {
		u, err := client.URL(ns.Request(it.Code, start, end))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", it.Code, err)
			return subcommands.ExitFailure
		}
		fmt.Printf("%s\t%s\n", it.Name, u)
	}
	return subcommands.ExitSuccess
}

type exportSheetsCmd struct {
	logger *log.Logger
	seriesFlags
	flows  bool
	dryRun bool
}

func (*exportSheetsCmd) Name() string     { return "export-sheets" }
func (*exportSheetsCmd) Synopsis() string { return "writes series to the configured Google spreadsheet" }
func (*exportSheetsCmd) Usage() string {
	return `export-sheets [-series key | -stat code -item code] [-period 5y] [-flows] [-dry-run]:

Replaces one tab per series in GOOGLE_SPREADSHEET_ID. Without -series or -stat
every tracked series is exported. -flows also exports the stored investor
flows of SYNC_MARKET. -dry-run writes to memory and prints the ranges.
`
}

func (c *exportSheetsCmd) SetFlags(f *flag.FlagSet) {
	c.seriesFlags.register(f, "5y")
	f.BoolVar(&c.flows, "flows", false, "also export stored investor flows")
	f.BoolVar(&c.dryRun, "dry-run", false, "do not touch the spreadsheet")
}

func (c *exportSheetsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg := cli.LoadAndValidateConfig(c.logger)

	var targets []ecos.NamedSeries
	if c.series == "" && c.stat == "" {
		targets = ecos.Tracked
	} else {
		ns, err := c.named()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
		targets = []ecos.NamedSeries{ns}
	}
	start, end, err := c.window(cfg.HistoryFloor())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	if c.dryRun {
		bcfg.Type = backend.MemoryExporter
	} else if bcfg.Type == backend.NoExporter {
		fmt.Fprintf(os.Stderr, "Error: GOOGLE_SPREADSHEET_ID is not set\n")
		return subcommands.ExitUsageError
	}
	exporter, err := backend.NewFactory(c.logger).CreateExporter(ctx, bcfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	repo := cli.InitSQLite(c.logger, cfg.SQLiteDBPath)
	defer repo.Close()
	reader := services.NewSeriesReader(repo)
	client := cli.NewECOS(cfg, c.logger)
	status := subcommands.ExitSuccess
	for _, ns := range targets {
		table, source, err := storedOrLive(ctx, reader, client, ns, start, end)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: fetch %s: %v\n", ns.Key, err)
			status = subcommands.ExitFailure
			continue
		}
		ref, err := exporter.WriteSeries(ctx, table)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: export %s: %v\n", ns.Key, err)
			status = subcommands.ExitFailure
			continue
		}
		fmt.Printf("%s\t%d rows\t%s\t%s\n", ns.Key, len(table.Rows), source, ref)
	}

	if c.flows {
		flows, err := repo.ListInvestorFlows(ctx, cfg.SyncMarket, start, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: list flows: %v\n", err)
			return subcommands.ExitFailure
		}
		ref, err := exporter.WriteFlows(ctx, cfg.SyncMarket, flows)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: export flows: %v\n", err)
			return subcommands.ExitFailure
		}
		fmt.Printf("flows_%s\t%d rows\t%s\n", cfg.SyncMarket, len(flows), ref)
	}

	if mem, ok := exporter.(*memory.Store); ok {
		fmt.Fprintf(os.Stderr, "dry run: %d tabs prepared (%s)\n", len(mem.Tabs()), strings.Join(mem.Tabs(), ", "))
	}
	return status
}

type wideReader interface {
	ReadWide(ctx context.Context, s ecos.NamedSeries, start, end time.Time) (*ecos.WideTable, error)
}

type wideFetcher interface {
	FetchWide(ctx context.Context, s ecos.NamedSeries, start, end time.Time) (*ecos.WideTable, error)
}

// storedOrLive reads ns from the local store and downloads it from ECOS only
// when nothing is stored for the window. The second result names the source.
func storedOrLive(ctx context.Context, stored wideReader, live wideFetcher, ns ecos.NamedSeries, start, end time.Time) (*ecos.WideTable, string, error) {
	table, err := stored.ReadWide(ctx, ns, start, end)
	if err == nil && len(table.Rows) > 0 {
		return table, "store", nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: read stored %s: %v\n", ns.Key, err)
	}
	table, err = live.FetchWide(ctx, ns, start, end)
	return table, "ecos", err
}
