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
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/google/gocpa"
)

func TestLoadConfig(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "attack.yaml")
	data := []byte(`
dataset: data/ds2
resample: true
window_size: 4
ref_trace: 3
workers: 2
positions: [0, 5, 15]
report: out.report.json.gz
`)
	if err := os.WriteFile(filename, data, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := gocpa.LoadConfig(filename)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	expected := gocpa.DefaultConfig()
	expected.Dataset = "data/ds2"
	expected.Resample = true
	expected.WindowSize = 4
	expected.RefTrace = 3
	expected.Workers = 2
	expected.Positions = []int{0, 5, 15}
	expected.Report = "out.report.json.gz"
	if !reflect.DeepEqual(cfg, expected) {
		t.Errorf("Loaded config (%+v) did not match expected (%+v)", cfg, expected)
	}
	if err = cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
	if opts := cfg.ResampleOptions(); opts.WindowSize != 4 || opts.Threshold != gocpa.DefaultClockThreshold {
		t.Errorf("Unexpected resample options %+v", opts)
	}
	if opts := cfg.AttackOptions(); opts.Workers != 2 || len(opts.Positions) != 3 {
		t.Errorf("Unexpected attack options %+v", opts)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := gocpa.LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Errorf("Expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("window_size: [1"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := gocpa.LoadConfig(bad); err == nil {
		t.Errorf("Expected error for malformed YAML")
	}
}

func TestConfigValidate(t *testing.T) {
	valid := gocpa.DefaultConfig()
	valid.Dataset = "ds"

	tests := []struct {
		name   string
		modify func(c *gocpa.Config)
	}{
		{"no input", func(c *gocpa.Config) { c.Dataset = "" }},
		{"window too small", func(c *gocpa.Config) { c.WindowSize = 1 }},
		{"nan threshold", func(c *gocpa.Config) { c.Threshold = math.NaN() }},
		{"ref position", func(c *gocpa.Config) { c.RefPosition = 16 }},
		{"ref trace", func(c *gocpa.Config) { c.RefTrace = -1 }},
		{"workers", func(c *gocpa.Config) { c.Workers = -2 }},
		{"positions", func(c *gocpa.Config) { c.Positions = []int{3, 16} }},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate failed on valid config: %v", err)
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.modify(&c)
			if err := c.Validate(); err == nil {
				t.Errorf("Validate accepted %+v", c)
			}
		})
	}
}
