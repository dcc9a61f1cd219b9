package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/fekuna/omnipos-stock-service/internal/catalog"
	catRepoPkg "github.com/fekuna/omnipos-stock-service/internal/catalog/repository"
	"github.com/fekuna/omnipos-stock-service/internal/gateway"
	"github.com/fekuna/omnipos-stock-service/internal/ledger"
	"github.com/fekuna/omnipos-stock-service/internal/report"
	reportUCPkg "github.com/fekuna/omnipos-stock-service/internal/report/usecase"
	"github.com/fekuna/omnipos-stock-service/pkg/database/postgres"
)

type migrateCmd struct {
	app *App
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create the items and transactions tables" }
func (*migrateCmd) Usage() string {
	return `stockctl migrate

  Applies the embedded schema. Safe to run repeatedly.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	db, err := c.app.OpenDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db); err != nil {
		fmt.Fprintf(os.Stderr, "Error applying schema: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintln(c.app.Out, "schema applied")
	return subcommands.ExitSuccess
}

type syncCmd struct {
	app      *App
	snapshot string
}

func (*syncCmd) Name() string     { return "sync" }
func (*syncCmd) Synopsis() string { return "reconcile the local snapshot with the database" }
func (*syncCmd) Usage() string {
	return `stockctl sync [-snapshot <path>]

  Runs the startup reconciliation once: a non-empty database overwrites the
  snapshot, otherwise a non-empty snapshot is pushed to the database.
`
}

func (c *syncCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.snapshot, "snapshot", c.app.Config.Replica.SnapshotPath, "path of the local catalog snapshot")
}

func (c *syncCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	db, err := c.app.OpenDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		return subcommands.ExitFailure
	}
	defer db.Close()

	store := catalog.NewStore()
	gw := gateway.New(catRepoPkg.NewPGRepository(db, nil), gateway.NewLocalReplica(c.snapshot), store, c.app.Logger)
	outcome, err := gw.Reconcile(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reconciling (%s): %v\n", outcome, err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(c.app.Out, "%s: %d items\n", outcome, store.Len())
	return subcommands.ExitSuccess
}

type valuationCmd struct {
	app    *App
	date   string
	asJSON bool
}

func (*valuationCmd) Name() string     { return "valuation" }
func (*valuationCmd) Synopsis() string { return "print stock value at the end of a day" }
func (*valuationCmd) Usage() string {
	return `stockctl valuation [-d <YYYY-MM-DD>] [-json]

  Reconstructs every item's quantity at the end of the given day and values
  it at the current buy price.
`
}

func (c *valuationCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.date, "d", time.Now().In(c.app.location()).Format("2006-01-02"), "valuation date")
	f.BoolVar(&c.asJSON, "json", false, "print JSON instead of a table")
}

func (c *valuationCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	items, err := c.app.LoadItems(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading catalog: %v\n", err)
		return subcommands.ExitFailure
	}

	store := catalog.NewStore()
	store.SetItems(items)
	uc := reportUCPkg.NewReportUseCase(store, reportUCPkg.Config{Location: c.app.location()})

	v, err := uc.Valuation(ctx, c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}

	if c.asJSON {
		enc := json.NewEncoder(c.app.Out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding: %v\n", err)
			return subcommands.ExitFailure
		}
		return subcommands.ExitSuccess
	}
	writeValuation(c.app, v)
	return subcommands.ExitSuccess
}

func writeValuation(a *App, v report.Valuation) {
	w := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Barcode\tName\tQuantity\tBuy price\tValue\t\n")
	for _, l := range v.Lines {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t\n", l.Barcode, l.Name, l.Quantity, l.BuyPrice.StringFixed(2), l.Value.StringFixed(2))
	}
	fmt.Fprintf(w, "\t%d products\t%d\t\t%s\t\n", v.ProductCount, v.TotalQuantity, v.TotalValue.StringFixed(2))
	w.Flush()
	fmt.Fprintf(a.Out, "as of %s\n", v.AsOf.Format(time.RFC3339))
}

type checkCmd struct {
	app *App
}

func (*checkCmd) Name() string     { return "check" }
func (*checkCmd) Synopsis() string { return "verify stored quantities against the ledger" }
func (*checkCmd) Usage() string {
	return `stockctl check

  Reports every item whose stored quantity differs from the sum of its
  transactions. Exits non-zero when any item drifts.
`
}
func (*checkCmd) SetFlags(*flag.FlagSet) {}

func (c *checkCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	items, err := c.app.LoadItems(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading catalog: %v\n", err)
		return subcommands.ExitFailure
	}

	var drifted []string
	for _, it := range items {
		if !ledger.Reconciled(it) {
			drifted = append(drifted, fmt.Sprintf("%s (%s): stored %d, ledger %d", it.Name, it.Barcode, it.Quantity, ledger.Recompute(it)))
		}
	}
	if len(drifted) > 0 {
		fmt.Fprintf(c.app.Out, "%d of %d items drifted:\n  %s\n", len(drifted), len(items), strings.Join(drifted, "\n  "))
		return subcommands.ExitFailure
	}
	fmt.Fprintf(c.app.Out, "%d items reconciled\n", len(items))
	return subcommands.ExitSuccess
}
