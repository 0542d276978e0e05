package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/miretskiy/rollingtuner/integration"
	"github.com/miretskiy/rollingtuner/simulator"
	"github.com/miretskiy/rollingtuner/tuner"
)

// result is the JSON document a run produces
type result struct {
	Config       integration.Config  `json:"config"`
	VirtualTime  float64             `json:"virtualTime"`
	RealTime     float64             `json:"realTime"`
	Metrics      *simulator.Metrics  `json:"metrics"`
	FinalOptions tuner.EngineOptions `json:"finalOptions"`
	ChangeCounts map[tuner.Knob]int  `json:"changeCounts"`
	Reports      []tuner.Report      `json:"reports,omitempty"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("tune_runner", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "JSON or YAML file with sim and tuner sections (defaults when empty)")
	duration := fs.Float64("duration", 600, "Run length in virtual seconds")
	policy := fs.String("policy", "", "Override the tuner policy: rule_table, threshold or hysteresis")
	outputFile := fs.String("output", "", "Path to output JSON file (stdout when empty)")
	withReports := fs.Bool("reports", false, "Include every round's report in the output")
	logLevel := fs.String("log.level", "info", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := log.NewLogfmtLogger(log.NewSyncWriter(stderr))
	switch *logLevel {
	case "debug":
		logger = level.NewFilter(logger, level.AllowDebug())
	case "info":
		logger = level.NewFilter(logger, level.AllowInfo())
	case "warn":
		logger = level.NewFilter(logger, level.AllowWarn())
	case "error":
		logger = level.NewFilter(logger, level.AllowError())
	default:
		return errors.Errorf("invalid log level %q", *logLevel)
	}

	cfg := integration.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = integration.LoadConfig(*configFile); err != nil {
			return err
		}
	}
	if *policy != "" {
		kind, err := tuner.ParsePolicyKind(*policy)
		if err != nil {
			return err
		}
		cfg.Tuner.Policy = kind
	}

	loop, err := integration.NewLoop(cfg, tuner.LogObserver{Logger: logger})
	if err != nil {
		return err
	}
	loop.Sim.LogEvent = func(msg string) {
		level.Debug(logger).Log("component", "sim", "msg", msg)
	}

	level.Info(logger).Log("msg", "starting closed loop", "policy", cfg.Tuner.Policy, "duration", *duration)
	start := time.Now()
	reports := loop.RunUntil(*duration)
	elapsed := time.Since(start)

	metrics := loop.Sim.Metrics()
	if metrics.IsOOMKilled {
		level.Warn(logger).Log("msg", "engine OOM killed", "virtual_time", loop.Sim.VirtualTime())
	}
	level.Info(logger).Log("msg", "run finished", "rounds", len(reports),
		"virtual_time", loop.Sim.VirtualTime(), "real_time", elapsed)

	counts := map[tuner.Knob]int{}
	for _, c := range lo.FlatMap(reports, func(r tuner.Report, _ int) []tuner.ChangePoint { return r.Changes }) {
		counts[c.Knob]++
	}
	res := result{
		Config:       cfg,
		VirtualTime:  loop.Sim.VirtualTime(),
		RealTime:     elapsed.Seconds(),
		Metrics:      metrics,
		FinalOptions: loop.Sim.Config().Engine,
		ChangeCounts: counts,
	}
	if *withReports {
		res.Reports = reports
	}

	output, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling results")
	}
	if *outputFile == "" {
		_, err = fmt.Fprintln(stdout, string(output))
		return err
	}
	if err := os.WriteFile(*outputFile, output, 0o644); err != nil {
		return errors.Wrap(err, "writing output file")
	}
	level.Info(logger).Log("msg", "results written", "path", *outputFile)
	return nil
}
