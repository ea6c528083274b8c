// Command rowdelta compares a table on two (possibly different)
// databases and prints the rows that differ, using bisecting checksum
// comparison instead of downloading either side in full.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/sirupsen/logrus"

	"github.com/rowdelta/rowdelta/config"
	"github.com/rowdelta/rowdelta/gateway"
	"github.com/rowdelta/rowdelta/sqldialect"
	"github.com/rowdelta/rowdelta/tablediff"
	"github.com/rowdelta/rowdelta/tablesegment"
)

func main() {
	cfgPath := flag.String("config", "", "path to a TOML configuration file")
	verbose := flag.Bool("verbose", false, "log at debug level")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	entry := logrus.NewEntry(log)

	if *cfgPath == "" {
		fmt.Fprintln(os.Stderr, "rowdelta: -config is required")
		os.Exit(2)
	}

	opts, err := config.LoadTOML(*cfgPath)
	if err != nil {
		entry.WithError(err).Fatal("rowdelta: loading configuration")
	}
	if *verbose {
		opts.Verbose = true
	}
	if opts.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx := context.Background()

	t1, err := openSegment(ctx, opts.Side1, opts.Table1, opts.PoolSize, entry.WithField("side", "1"))
	if err != nil {
		entry.WithError(err).Fatal("rowdelta: connecting to side 1")
	}
	t2, err := openSegment(ctx, opts.Side2, opts.Table2, opts.PoolSize, entry.WithField("side", "2"))
	if err != nil {
		entry.WithError(err).Fatal("rowdelta: connecting to side 2")
	}

	differ := &tablediff.TableDiffer{
		BisectionFactor:    opts.BisectionFactor,
		BisectionThreshold: int64(opts.BisectionThreshold),
		Debug:              opts.Debug,
		Limit:              opts.Limit,
		Log:                entry,
	}

	rowCh, errCh := differ.Diff(ctx, t1, t2)

	var added, removed int64
	for row := range rowCh {
		switch row.Sign {
		case '+':
			added++
		case '-':
			removed++
		}
		if !opts.Stats {
			fmt.Printf("%c %v\n", row.Sign, row.Values)
		}
	}

	if err := <-errCh; err != nil {
		entry.WithError(err).Error("rowdelta: diff failed")
		os.Exit(1)
	}

	if opts.Stats {
		printStats(ctx, t1, added, removed)
	}
}

func openSegment(ctx context.Context, conn config.Connection, spec config.TableSpec, poolSize int, log *logrus.Entry) (*tablesegment.TableSegment, error) {
	dialect, err := dialectByName(conn.Dialect)
	if err != nil {
		return nil, err
	}
	gw, err := gateway.Open(conn.DriverName, conn.DSN, dialect, poolSize, log)
	if err != nil {
		return nil, err
	}
	return tablesegment.New(gw, spec.Path(), spec.KeyColumn, spec.ExtraColumns, codecByName(spec.KeyType)), nil
}

func codecByName(name string) tablesegment.Codec {
	if name == "string" {
		return tablesegment.StringCodec{}
	}
	return tablesegment.IntCodec{}
}

func dialectByName(name string) (sqldialect.Dialect, error) {
	switch name {
	case "postgres":
		return sqldialect.Postgres{}, nil
	case "mysql":
		return sqldialect.MySQL{}, nil
	case "mssql":
		return sqldialect.MsSQL{}, nil
	case "redshift":
		return sqldialect.Redshift{}, nil
	case "snowflake":
		return sqldialect.Snowflake{}, nil
	case "bigquery":
		return sqldialect.BigQuery{}, nil
	default:
		return nil, fmt.Errorf("rowdelta: unknown dialect %q", name)
	}
}

func printStats(ctx context.Context, t1 *tablesegment.TableSegment, added, removed int64) {
	total := added + removed
	fmt.Printf("rows only in side 1 (+): %d\n", added)
	fmt.Printf("rows only in side 2 (-): %d\n", removed)
	fmt.Printf("total diffs: %d\n", total)

	c1, err := t1.Count(ctx)
	if err != nil || c1 == 0 {
		return
	}
	fmt.Printf("diff ratio vs side 1 count (%d rows): %.4f%%\n", c1, 100*float64(total)/float64(c1))
}
