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

package gocpa_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/google/gocpa"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func TestDatasetSaveLoad(t *testing.T) {
	dir := t.TempDir()
	ds := gocpa.Synthesize(testKey, gocpa.SynthOptions{
		Traces: 5, Samples: 24, Period: 8, Jitter: 2, LeakEdge: 1, Noise: 0.1, Baseline: 1,
	}, rand.New(rand.NewSource(1)))
	if err := ds.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := gocpa.LoadDataset(dir, true)
	if err != nil {
		t.Fatalf("LoadDataset failed: %v", err)
	}
	if !reflect.DeepEqual(loaded.ClearText, ds.ClearText) {
		t.Errorf("Loaded cleartext (%v) did not match original (%v)", loaded.ClearText, ds.ClearText)
	}
	for b := 0; b < gocpa.KeyBytes; b++ {
		if !mat.Equal(loaded.Traces[b], ds.Traces[b]) {
			t.Errorf("Loaded traces for byte %d did not match original", b)
		}
		if !mat.Equal(loaded.Clocks[b], ds.Clocks[b]) {
			t.Errorf("Loaded clocks for byte %d did not match original", b)
		}
	}

	noClocks, err := gocpa.LoadDataset(dir, false)
	if err != nil {
		t.Fatalf("LoadDataset without clocks failed: %v", err)
	}
	if noClocks.Clocks != nil {
		t.Errorf("Clocks loaded although not requested")
	}
}

func TestLoadDatasetDetectsShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	ds := gocpa.Synthesize(testKey, gocpa.SynthOptions{
		Traces: 3, Samples: 8, Period: 4, LeakEdge: 0, Noise: 0.1, Baseline: 1,
	}, rand.New(rand.NewSource(1)))
	if err := ds.Save(dir); err != nil {
		t.Fatal(err)
	}
	// Seven values cannot be split in three traces.
	if err := os.WriteFile(gocpa.TraceFile(dir, 4), []byte("1 2 3 4 5 6 7"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := gocpa.LoadDataset(dir, false)
	var shape *gocpa.ShapeError
	if !errors.As(err, &shape) {
		t.Fatalf("Expected ShapeError, got %v", err)
	}
	if !strings.Contains(err.Error(), "trace4.txt") {
		t.Errorf("Error %q does not name the offending file", err)
	}

	if err := os.Remove(filepath.Join(dir, "cleartext.txt")); err != nil {
		t.Fatal(err)
	}
	if _, err := gocpa.LoadDataset(dir, false); err == nil {
		t.Errorf("LoadDataset expected to fail without cleartext")
	}
}

func TestParseTraceMatrix(t *testing.T) {
	m, err := gocpa.ParseTraceMatrix(strings.NewReader("1 2 3\n4 5.5 -6e-1\n"), 2)
	if err != nil {
		t.Fatalf("ParseTraceMatrix failed: %v", err)
	}
	expected := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5.5, -0.6})
	if !mat.Equal(m, expected) {
		t.Errorf("Parsed matrix (%v) did not match expected (%v)", mat.Formatted(m), mat.Formatted(expected))
	}

	if _, err := gocpa.ParseTraceMatrix(strings.NewReader("1 2 x"), 1); err == nil {
		t.Errorf("Expected parse error")
	}
	if _, err := gocpa.ParseTraceMatrix(strings.NewReader(""), 1); err == nil {
		t.Errorf("Expected error on empty input")
	}
}

func TestDatasetValidate(t *testing.T) {
	ds := &gocpa.Dataset{
		ClearText: make(gocpa.ClearText, 2),
		Traces:    make(gocpa.TraceSet, gocpa.KeyBytes),
		Clocks:    make(gocpa.TraceSet, gocpa.KeyBytes),
	}
	for b := range ds.Traces {
		ds.Traces[b] = mat.NewDense(2, 5, nil)
		ds.Clocks[b] = mat.NewDense(2, 5, nil)
	}
	if err := ds.Validate(); err != nil {
		t.Fatalf("Validate failed on a consistent dataset: %v", err)
	}
	ds.Clocks[7] = mat.NewDense(2, 4, nil)
	var shape *gocpa.ShapeError
	if err := ds.Validate(); !errors.As(err, &shape) || shape.What != "clocks[7]" || shape.Dim != "samples" {
		t.Errorf("Expected samples ShapeError for clocks[7], got %v", err)
	}
}
