// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/apimachinery/pkg/util/wait"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/antimetal/ringbuffer/pkg/errors"
	"github.com/antimetal/ringbuffer/pkg/performance"
	_ "github.com/antimetal/ringbuffer/pkg/performance/collectors"
	"github.com/antimetal/ringbuffer/pkg/ringbuffer"
)

var (
	setupLog logr.Logger

	// CLI Options
	interval     time.Duration
	reportEvery  time.Duration
	procPath     string
	capacity     int
	capacityFile string
	windowSize   int
	metricTypes  string
	dumpOnExit   bool
	prettyOutput bool

	zapOpts = zap.Options{}
)

func init() {
	flag.DurationVar(&interval, "interval", time.Second, "Sampling interval")
	flag.DurationVar(&reportEvery, "report-every", 10*time.Second,
		"How often to log a summary of the sample windows. Set to 0 to disable")
	flag.StringVar(&procPath, "proc-path", "/proc", "Path to proc filesystem")
	flag.IntVar(&capacity, "capacity", ringbuffer.DefaultCapacity, "Number of samples kept per series. Must be greater than 0")
	flag.StringVar(&capacityFile, "capacity-file", "",
		"File holding the number of samples kept per series. Overrides -capacity and is re-read on SIGHUP")
	flag.IntVar(&windowSize, "window", 60, "Number of most recent samples summarized in each report")
	flag.StringVar(&metricTypes, "metrics", "",
		"Comma-separated list of metric types to sample (empty for all registered)")
	flag.BoolVar(&dumpOnExit, "dump", false, "Print the retained windows as JSON on exit")
	flag.BoolVar(&prettyOutput, "pretty", true, "Pretty print JSON output")

	zapOpts.BindFlags(flag.CommandLine)
}

func main() {
	flag.Parse()
	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))
	setupLog = ctrl.Log.WithName("setup")

	ctx := ctrl.SetupSignalHandler()

	if capacityFile != "" {
		n, err := readCapacity(capacityFile)
		if err != nil {
			setupLog.Error(err, "invalid -capacity-file")
			os.Exit(1)
		}
		capacity = n
	}
	if err := checkCapacity(capacity); err != nil {
		setupLog.Error(err, "invalid -capacity flag")
		os.Exit(1)
	}

	enabled, err := enabledCollectors(metricTypes)
	if err != nil {
		setupLog.Error(err, "invalid -metrics flag")
		os.Exit(1)
	}

	mgr, err := performance.NewManager(performance.ManagerOptions{
		Config: performance.CollectionConfig{
			Interval:          interval,
			EnabledCollectors: enabled,
			HostProcPath:      procPath,
			HistoryCapacity:   capacity,
		},
		Logger: ctrl.Log,
	})
	if err != nil {
		setupLog.Error(err, "unable to create sampler")
		os.Exit(1)
	}

	if reportEvery > 0 {
		reportLog := ctrl.Log.WithName("report")
		go wait.UntilWithContext(ctx, func(context.Context) {
			report(reportLog, mgr.History(), windowSize)
		}, reportEvery)
	}

	if capacityFile != "" {
		go watchCapacity(ctx, ctrl.Log.WithName("reload"), mgr.History(), capacityFile)
	}

	setupLog.Info("starting sampler", "node", mgr.GetNodeName())
	mgr.Run(ctx)

	if dumpOnExit {
		if err := dump(mgr.History()); err != nil {
			setupLog.Error(err, "unable to dump sample windows")
			os.Exit(1)
		}
	}
}

// enabledCollectors turns a comma-separated list into the EnabledCollectors
// map. An empty list enables every registered collector.
func enabledCollectors(list string) (map[performance.MetricType]bool, error) {
	registered := sets.New(performance.RegisteredTypes()...)
	requested := registered
	if strings.TrimSpace(list) != "" {
		requested = sets.New[performance.MetricType]()
		for _, name := range strings.Split(list, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			requested.Insert(performance.MetricType(name))
		}
	}

	if unknown := requested.Difference(registered); unknown.Len() > 0 {
		return nil, fmt.Errorf("unknown metric types %v, available: %v",
			sets.List(unknown), sets.List(registered))
	}

	enabled := make(map[performance.MetricType]bool, requested.Len())
	for _, metricType := range requested.UnsortedList() {
		enabled[metricType] = true
	}
	return enabled, nil
}

func checkCapacity(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: capacity must be greater than 0, got %d", errors.ErrInvalidCapacity, n)
	}
	return nil
}

func readCapacity(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse capacity in %s: %w", path, err)
	}
	if err := checkCapacity(n); err != nil {
		return 0, err
	}
	return n, nil
}

// reloadCapacity resizes every series to the capacity held in path. The
// newest samples survive a shrink.
func reloadCapacity(logger logr.Logger, history *performance.History, path string) error {
	n, err := readCapacity(path)
	if err != nil {
		return err
	}
	if n == history.Capacity() {
		logger.V(1).Info("capacity unchanged", "capacity", n)
		return nil
	}
	previous := history.Capacity()
	if err := history.Resize(n); err != nil {
		return err
	}
	logger.Info("resized sample history", "from", previous, "to", n)
	return nil
}

func watchCapacity(ctx context.Context, logger logr.Logger, history *performance.History, path string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := reloadCapacity(logger, history, path); err != nil {
				logger.Error(err, "unable to reload capacity", "path", path)
			}
		}
	}
}

func report(logger logr.Logger, history *performance.History, n int) {
	for _, name := range history.Names() {
		s := performance.Summarize(history.Window(name, n))
		if s.Count == 0 {
			continue
		}
		logger.Info("window", "series", name, "samples", s.Count,
			"latest", s.Latest, "min", s.Min, "max", s.Max, "mean", s.Mean)
	}
}

func dump(history *performance.History) error {
	windows := make(map[string][]performance.Sample)
	for _, name := range history.Names() {
		windows[name] = history.Snapshot(name)
	}

	var (
		output []byte
		err    error
	)
	if prettyOutput {
		output, err = json.MarshalIndent(windows, "", "  ")
	} else {
		output, err = json.Marshal(windows)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal windows: %w", err)
	}
	_, err = fmt.Fprintf(os.Stdout, "%s\n", output)
	return err
}
