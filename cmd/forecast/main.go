// Command forecast trains, serves and runs the energy consumption forecasting
// pipeline.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/YuminosukeSato/gbforecast/config"
	"github.com/YuminosukeSato/gbforecast/pipeline"
	"github.com/YuminosukeSato/gbforecast/pkg/errors"
	"github.com/YuminosukeSato/gbforecast/pkg/log"
	"github.com/YuminosukeSato/gbforecast/server"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

const usage = `usage: forecast <command> [flags]

commands:
  train            train a model and save the artifact
  predict          predict every row of an input file
  forecast         forecast the next --horizon steps
  serve            start the HTTP API
  inspect          summarise the cleaned raw data
  validate-config  load and validate the config file
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// commandFunc runs one subcommand with the loaded config.
type commandFunc func(ctx context.Context, cfg *config.Config, out io.Writer) error

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}
	name, rest := args[0], args[1:]
	if name == "-h" || name == "--help" || name == "help" {
		fmt.Fprint(stdout, usage)
		return exitOK
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", config.DefaultPath, "path to the YAML config")

	var cmd commandFunc
	switch name {
	case "train":
		cmd = trainCmd
	case "predict":
		input := fs.String("input", "", "input file (defaults to serving.inference_file)")
		output := fs.String("output", "", "CSV file to write (defaults to stdout)")
		cmd = func(ctx context.Context, cfg *config.Config, out io.Writer) error {
			return predictCmd(ctx, cfg, *input, *output, out)
		}
	case "forecast":
		horizon := fs.Int("horizon", 24, "number of steps to forecast")
		input := fs.String("input", "", "history file (defaults to serving.inference_file)")
		output := fs.String("output", "", "CSV file to write (defaults to stdout)")
		cmd = func(ctx context.Context, cfg *config.Config, out io.Writer) error {
			return forecastCmd(ctx, cfg, *input, *horizon, *output, out)
		}
	case "serve":
		cmd = serveCmd
	case "inspect":
		cmd = inspectCmd
	case "validate-config":
		cmd = func(_ context.Context, cfg *config.Config, out io.Writer) error {
			fmt.Fprintf(out, "%s is valid\n", cfg.File)
			return nil
		}
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", name, usage)
		return exitUsage
	}

	if err := fs.Parse(rest); err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "unexpected arguments: %v\n", fs.Args())
		return exitUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return exitError
	}
	opts, err := cfg.LogOptions()
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return exitError
	}
	provider, err := log.Setup(opts)
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return exitError
	}
	defer provider.Close()

	if err := cmd(ctx, cfg, stdout); err != nil {
		log.GetLoggerWithName("cli").Error("Command failed", err, log.OperationKey, name)
		fmt.Fprintf(stderr, "%s: %v\n", name, err)
		return exitError
	}
	return exitOK
}

func trainCmd(ctx context.Context, cfg *config.Config, out io.Writer) error {
	res, err := pipeline.Train(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "run %s\nmodel: %s\n", res.RunID, res.ModelPath)
	if res.RemoteURI != "" {
		fmt.Fprintf(out, "uploaded: %s\n", res.RemoteURI)
	}
	if res.ReportPath != "" {
		fmt.Fprintf(out, "report: %s\n", res.ReportPath)
	}
	for _, name := range []string{"rmse", "mae", "mape", "r2"} {
		if v, ok := res.ValidationMetrics[name]; ok {
			fmt.Fprintf(out, "validation %s: %.4f\n", name, v)
		}
	}
	return nil
}

func predictCmd(ctx context.Context, cfg *config.Config, input, output string, out io.Writer) error {
	if input == "" {
		input = cfg.Serving.InferenceFile
	}
	p, err := pipeline.LoadPredictor(cfg)
	if err != nil {
		return err
	}
	preds, err := p.PredictFile(ctx, input)
	if err != nil {
		return err
	}
	return writePredictions(preds, output, out)
}

func forecastCmd(ctx context.Context, cfg *config.Config, input string, horizon int, output string, out io.Writer) error {
	if input == "" {
		input = cfg.Serving.InferenceFile
	}
	p, err := pipeline.LoadPredictor(cfg)
	if err != nil {
		return err
	}
	preds, err := p.ForecastFile(ctx, input, horizon)
	if err != nil {
		return err
	}
	return writePredictions(preds, output, out)
}

func serveCmd(ctx context.Context, cfg *config.Config, _ io.Writer) error {
	s, err := server.New(cfg)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

func inspectCmd(ctx context.Context, cfg *config.Config, out io.Writer) error {
	s, err := pipeline.Inspect(ctx, cfg)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, s.String())
	return err
}

// writePredictions writes timestamp,prediction rows to path, or to out when
// path is empty.
func writePredictions(preds []pipeline.Prediction, path string, out io.Writer) error {
	w := out
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "create %s", path)
		}
		defer f.Close()
		w = f
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "prediction"}); err != nil {
		return errors.WithStack(err)
	}
	for _, p := range preds {
		if err := cw.Write([]string{
			p.Time.Format(time.DateTime),
			strconv.FormatFloat(p.Value, 'f', -1, 64),
		}); err != nil {
			return errors.WithStack(err)
		}
	}
	cw.Flush()
	return errors.WithStack(cw.Error())
}
