// Copyright 2019 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Recovers an AES-128 key from power traces using correlation power analysis
// on the first round sbox lookup, optionally resynchronizing the traces to a
// reference clock first.
// https://wiki.newae.com/Correlation_Power_Analysis

// $ go run ./cmd/synth -output /tmp/synth -jitter 3
// $ go run ./cmd/attack -dataset /tmp/synth -resample -window 8 -logtostderr -v=1
// [dataset.go:144] Loaded dataset with 100 traces / 400 samples per trace
// [main.go:205] Reference clock has 49 edges
// [resample.go:210] Resampled byte 0: <Traces:100, DroppedEdges:0, OutOfRange:0>
// [attack.go:113] Calculating byte 0...
// [attack.go:117] Best guess for index 0: <Key:0x2b, Corr:0.912733, Loc: 85>
// ...
// [main.go:228] Fully recovered key: 2b7e151628aed2a6abf7158809cf4f3c

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/google/gocpa"

	"github.com/fatih/color"
	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/rodaine/table"
)

var (
	configFlag    = flag.String("config", "", "YAML config file; flags given explicitly override it")
	datasetFlag   = flag.String("dataset", "", "Dataset directory with cleartext.txt, trace{b}.txt and clock{b}.txt")
	captureFlag   = flag.String("capture", "", "Capture .json.gz input file, used if -dataset is empty")
	resampleFlag  = flag.Bool("resample", false, "Align traces to the reference clock before the attack")
	windowFlag    = flag.Int("window", 2, "Width in samples of the window around each clock edge")
	thresholdFlag = flag.Float64("threshold", gocpa.DefaultClockThreshold, "Clock level separating low from high")
	refPosFlag    = flag.Int("ref_position", 0, "Byte position of the reference clock")
	refTraceFlag  = flag.Int("ref_trace", 0, "Trace index of the reference clock")
	workersFlag   = flag.Int("workers", 0, "Concurrent workers, 0 for one per CPU")
	positionsFlag = flag.String("positions", "", "Comma separated key byte positions to attack, all if empty")
	reportFlag    = flag.String("report", "", "Report output file, should end in "+gocpa.ReportExt)
	keyHexFlag    = flag.String("key", "", "Known 16byte key in hex, used to print the rank of each key byte")
)

func init() {
	flag.Parse()
}

func parsePositions(s string) ([]int, error) {
	var positions []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		p, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Wrapf(err, "position %q", f)
		}
		positions = append(positions, p)
	}
	return positions, nil
}

// loadConfig reads -config if given and applies the flags set on the command
// line on top of it.
func loadConfig() (gocpa.Config, error) {
	cfg := gocpa.DefaultConfig()
	if *configFlag != "" {
		var err error
		if cfg, err = gocpa.LoadConfig(*configFlag); err != nil {
			return cfg, err
		}
	}

	var err error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dataset":
			cfg.Dataset = *datasetFlag
		case "capture":
			cfg.Capture = *captureFlag
		case "resample":
			cfg.Resample = *resampleFlag
		case "window":
			cfg.WindowSize = *windowFlag
		case "threshold":
			cfg.Threshold = *thresholdFlag
		case "ref_position":
			cfg.RefPosition = *refPosFlag
		case "ref_trace":
			cfg.RefTrace = *refTraceFlag
		case "workers":
			cfg.Workers = *workersFlag
		case "positions":
			cfg.Positions, err = parsePositions(*positionsFlag)
		case "report":
			cfg.Report = *reportFlag
		}
	})
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func loadDataset(cfg gocpa.Config) (*gocpa.Dataset, error) {
	if cfg.Dataset != "" {
		return gocpa.LoadDataset(cfg.Dataset, cfg.Resample)
	}
	capture, err := gocpa.LoadCapture(cfg.Capture)
	if err != nil {
		return nil, err
	}
	ds, err := capture.Dataset()
	if err != nil {
		return nil, err
	}
	glog.Infof("Loaded capture with %d traces / %d samples per trace",
		len(capture), len(capture[0].PowerMeasurements))
	return ds, nil
}

func printResults(res *gocpa.Result, known []byte) {
	headerFmt := color.New(color.FgGreen, color.Underline).SprintfFunc()
	columnFmt := color.New(color.FgYellow).SprintfFunc()
	goodFmt := color.New(color.FgGreen).SprintfFunc()
	badFmt := color.New(color.FgRed, color.Bold).SprintfFunc()

	headers := []interface{}{"Index", "Key", "Corr", "Loc", "Undefined"}
	if known != nil {
		headers = append(headers, "Rank")
	}
	tbl := table.New(headers...)
	tbl.WithHeaderFormatter(headerFmt).WithFirstColumnFormatter(columnFmt)

	for _, b := range res.Bytes {
		row := []interface{}{b.Position, fmt.Sprintf("0x%02x", b.Key),
			fmt.Sprintf("%f", b.Correlation), b.Location, b.Undefined}
		if known != nil {
			rank := b.Rank(known[b.Position])
			if rank == 0 {
				row = append(row, goodFmt("%d", rank))
			} else {
				row = append(row, badFmt("%d", rank))
			}
		}
		tbl.AddRow(row...)
	}
	tbl.Print()
}

func main() {
	defer glog.Flush()

	cfg, err := loadConfig()
	if err != nil {
		glog.Fatal(err)
	}

	var known []byte
	if *keyHexFlag != "" {
		if known, err = gocpa.ParseKey(*keyHexFlag); err != nil {
			glog.Fatal(err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	start := time.Now()
	ds, err := loadDataset(cfg)
	if err != nil {
		glog.Fatal(err)
	}

	traces := ds.Traces
	var stats *gocpa.ResampleStats
	var ref []int
	if cfg.Resample {
		if ds.Clocks == nil {
			glog.Fatal("Resampling requires clock traces")
		}
		if ref, err = gocpa.ReferenceEdges(ds.Clocks, cfg.RefPosition, cfg.RefTrace, cfg.Threshold); err != nil {
			glog.Fatal(err)
		}
		glog.Infof("Reference clock has %d edges", len(ref))

		var s gocpa.ResampleStats
		if traces, s, err = gocpa.ResampleAll(ctx, ref, ds.Traces, ds.Clocks, cfg.ResampleOptions()); err != nil {
			glog.Fatal(err)
		}
		stats = &s
	}

	model, err := gocpa.BuildLeakageModel(ctx, ds.ClearText, cfg.Workers)
	if err != nil {
		glog.Fatal(err)
	}

	opts := cfg.AttackOptions()
	opts.Reporter = gocpa.LogReporter{}
	res, err := gocpa.RunCPA(ctx, traces, model, opts)
	if err != nil {
		glog.Fatal(err)
	}
	elapsed := time.Since(start)

	printResults(res, known)
	glog.Infof("Fully recovered key: %v", res.KeyHex())
	glog.V(1).Infof("Attack took %v", elapsed)

	if cfg.Report != "" {
		if err = gocpa.NewReport(res, stats, ref, elapsed).Save(cfg.Report); err != nil {
			glog.Fatal(err)
		}
		glog.Infof("Wrote report to %s", cfg.Report)
	}
}
