package cli

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/ledger"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/pkg/logger"
)

func testApp(t *testing.T, items []model.Item, err error) (*App, *bytes.Buffer) {
	t.Helper()
	t.Setenv("APP_TIMEZONE", "UTC")
	out := &bytes.Buffer{}
	a := NewApp(config.LoadEnv(), out, logger.NewNop())
	a.LoadItems = func(context.Context) ([]model.Item, error) { return items, err }
	return a, out
}

func mug(t *testing.T) model.Item {
	t.Helper()
	it := &model.Item{
		BaseModel: model.BaseModel{ID: "mug"},
		Barcode:   "869000",
		Name:      "Mug",
		BuyPrice:  decimal.RequireFromString("2.50"),
	}
	moves := []model.Transaction{
		{ID: "t1", Type: model.TransactionIn, Quantity: 10, Date: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		{ID: "t2", Type: model.TransactionOut, Quantity: 4, Date: time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)},
	}
	for _, tx := range moves {
		if err := ledger.Post(it, tx, tx.Date); err != nil {
			t.Fatalf("post: %v", err)
		}
	}
	return *it
}

func run(t *testing.T, cmd subcommands.Command, args ...string) subcommands.ExitStatus {
	t.Helper()
	fs := flag.NewFlagSet(cmd.Name(), flag.ContinueOnError)
	cmd.SetFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd.Execute(context.Background(), fs)
}

func TestValuationCommand(t *testing.T) {
	a, out := testApp(t, []model.Item{mug(t)}, nil)

	if st := run(t, &valuationCmd{app: a}, "-d", "2024-03-01"); st != subcommands.ExitSuccess {
		t.Fatalf("exit = %v", st)
	}
	if !strings.Contains(out.String(), "25.00") || !strings.Contains(out.String(), "869000") {
		t.Errorf("output:\n%s", out)
	}

	out.Reset()
	if st := run(t, &valuationCmd{app: a}, "-d", "2024-03-02", "-json"); st != subcommands.ExitSuccess {
		t.Fatalf("exit = %v", st)
	}
	if !strings.Contains(out.String(), `"totalQuantity": 6`) {
		t.Errorf("json output:\n%s", out)
	}

	if st := run(t, &valuationCmd{app: a}, "-d", "March"); st != subcommands.ExitUsageError {
		t.Errorf("bad date exit = %v", st)
	}
}

func TestCheckCommand(t *testing.T) {
	good := mug(t)
	a, out := testApp(t, []model.Item{good}, nil)
	if st := run(t, &checkCmd{app: a}); st != subcommands.ExitSuccess {
		t.Errorf("exit = %v, output %s", st, out)
	}

	bad := mug(t)
	bad.Quantity = 9
	a, out = testApp(t, []model.Item{good, bad}, nil)
	if st := run(t, &checkCmd{app: a}); st != subcommands.ExitFailure {
		t.Errorf("exit = %v", st)
	}
	if !strings.Contains(out.String(), "stored 9, ledger 6") {
		t.Errorf("output:\n%s", out)
	}

	a, _ = testApp(t, nil, errors.New("connection refused"))
	if st := run(t, &checkCmd{app: a}); st != subcommands.ExitFailure {
		t.Errorf("load failure exit = %v", st)
	}
}
