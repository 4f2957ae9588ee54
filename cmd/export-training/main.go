package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"

	"sensor-ingest/confs"
	"sensor-ingest/db"
	"sensor-ingest/entities"
	"sensor-ingest/etl"
	"sensor-ingest/repositories"
	"sensor-ingest/usecases"
)

type options struct {
	kind   entities.SensorKind
	since  time.Time
	strict bool
	out    string
}

func parseOptions(args []string, now time.Time) (*options, error) {
	fs := flag.NewFlagSet("export-training", flag.ContinueOnError)
	kind := fs.StringP("kind", "k", "air", "sensor kind to export (air, sound, water)")
	window := fs.DurationP("window", "w", 0, "only export rows newer than now minus window; 0 exports everything")
	strict := fs.Bool("strict", false, "keep only values between P5 and P95")
	out := fs.StringP("out", "o", "-", "output file, - for stdout")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	k, err := entities.ParseSensorKind(*kind)
	if err != nil {
		return nil, err
	}
	if *window < 0 {
		return nil, fmt.Errorf("window must not be negative")
	}
	opts := &options{kind: k, strict: *strict, out: *out}
	if *window > 0 {
		opts.since = now.Add(-*window)
	}
	return opts, nil
}

func (o *options) variant() etl.OutlierVariant {
	if o.strict {
		return etl.OutliersStrict
	}
	return etl.OutliersStandard
}

func writeCSV(w io.Writer, series *usecases.CleanedSeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"device_name", "timestamp", string(series.Kind)}); err != nil {
		return err
	}
	for _, p := range series.Points {
		if err := cw.Write([]string{
			p.DeviceName,
			p.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(p.Value, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func main() {
	opts, err := parseOptions(os.Args[1:], time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(ctx, opts, log); err != nil {
		log.Error("export failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options, log *slog.Logger) error {
	cfg, err := confs.LoadConfig(".")
	if err != nil {
		return err
	}
	database, err := db.Connect(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer database.Close()

	training := usecases.NewTrainingUseCase(repositories.NewMeasurementPgRepository(database))
	series, err := training.CleanSeries(ctx, opts.kind, opts.since, opts.variant())
	if err != nil {
		return err
	}

	w := io.Writer(os.Stdout)
	if opts.out != "-" {
		f, err := os.Create(opts.out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := writeCSV(w, series); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	log.Info("training series exported",
		"kind", series.Kind,
		"variant", series.Variant,
		"rows", len(series.Points),
		"outliers_removed", series.Removed,
	)
	return nil
}
