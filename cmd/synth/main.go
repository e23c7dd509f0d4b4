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

// Writes a synthetic dataset with jittered device clocks, for trying out the
// attack without acquisition hardware.
package main

import (
	"flag"
	"math/rand"
	"time"

	"github.com/google/gocpa"

	"github.com/golang/glog"
)

var (
	defaults = gocpa.DefaultSynthOptions()

	outputFlag   = flag.String("output", "", "Dataset output directory")
	keyHexFlag   = flag.String("key", "2b7e151628aed2a6abf7158809cf4f3c", "16byte key in hex")
	tracesFlag   = flag.Int("traces", defaults.Traces, "Number of traces per key byte")
	samplesFlag  = flag.Int("samples", defaults.Samples, "Number of samples per trace")
	periodFlag   = flag.Int("period", defaults.Period, "Device clock period in samples")
	jitterFlag   = flag.Int("jitter", defaults.Jitter, "Largest clock phase shift in samples")
	leakEdgeFlag = flag.Int("leak_edge", defaults.LeakEdge, "Clock edge after which the sbox output leaks")
	noiseFlag    = flag.Float64("noise", defaults.Noise, "Standard deviation of the measurement noise")
	seedFlag     = flag.Int64("seed", 0, "Random seed, 0 for the current time")
)

func init() {
	flag.Parse()
}

func main() {
	defer glog.Flush()

	if *outputFlag == "" {
		glog.Fatal("-output is required")
	}
	key, err := gocpa.ParseKey(*keyHexFlag)
	if err != nil {
		glog.Fatal(err)
	}
	if *periodFlag < 2 || *periodFlag%2 != 0 {
		glog.Fatalf("-period must be even and at least 2, got %d", *periodFlag)
	}
	if *tracesFlag < 1 || *samplesFlag < 1 {
		glog.Fatalf("-traces and -samples must be positive")
	}

	seed := *seedFlag
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	glog.V(1).Infof("Using seed %d", seed)

	opts := defaults
	opts.Traces = *tracesFlag
	opts.Samples = *samplesFlag
	opts.Period = *periodFlag
	opts.Jitter = *jitterFlag
	opts.LeakEdge = *leakEdgeFlag
	opts.Noise = *noiseFlag

	ds := gocpa.Synthesize(key, opts, rand.New(rand.NewSource(seed)))
	if err = ds.Save(*outputFlag); err != nil {
		glog.Fatal(err)
	}
	glog.Infof("Wrote %d traces / %d samples per trace to %s", opts.Traces, opts.Samples, *outputFlag)
}
