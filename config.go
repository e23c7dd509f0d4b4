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

package gocpa

import (
	"math"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config describes one attack run. Command line flags override values read
// from a file.
type Config struct {
	// Dataset is a directory in the LoadDataset layout.
	Dataset string `yaml:"dataset"`
	// Capture is a .json.gz capture file, used when Dataset is empty.
	Capture string `yaml:"capture"`

	// Resample aligns traces to a reference clock before the attack.
	Resample    bool    `yaml:"resample"`
	WindowSize  int     `yaml:"window_size"`
	Threshold   float64 `yaml:"threshold"`
	RefPosition int     `yaml:"ref_position"`
	RefTrace    int     `yaml:"ref_trace"`

	Workers   int   `yaml:"workers"`
	Positions []int `yaml:"positions"`

	// Report is the output file for the attack report. Nothing is written if
	// empty.
	Report string `yaml:"report"`
}

func DefaultConfig() Config {
	return Config{
		WindowSize: 2,
		Threshold:  DefaultClockThreshold,
	}
}

// LoadConfig reads a YAML config on top of DefaultConfig. The result is not
// validated since flags may still override it.
func LoadConfig(filename string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(filename)
	if err != nil {
		return cfg, errors.Wrap(err, "reading config")
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing config %s", filename)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Dataset == "" && c.Capture == "" {
		return errors.New("config: one of dataset or capture is required")
	}
	if c.WindowSize < 2 {
		return errors.Errorf("config: window_size must be at least 2, got %d", c.WindowSize)
	}
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return errors.Errorf("config: threshold must be finite, got %v", c.Threshold)
	}
	if c.RefPosition < 0 || c.RefPosition >= KeyBytes {
		return errors.Errorf("config: ref_position %d out of range [0, %d)", c.RefPosition, KeyBytes)
	}
	if c.RefTrace < 0 {
		return errors.Errorf("config: ref_trace must not be negative, got %d", c.RefTrace)
	}
	if c.Workers < 0 {
		return errors.Errorf("config: workers must not be negative, got %d", c.Workers)
	}
	for _, p := range c.Positions {
		if p < 0 || p >= KeyBytes {
			return errors.Errorf("config: position %d out of range [0, %d)", p, KeyBytes)
		}
	}
	return nil
}

func (c Config) ResampleOptions() ResampleOptions {
	return ResampleOptions{WindowSize: c.WindowSize, Threshold: c.Threshold, Workers: c.Workers}
}

func (c Config) AttackOptions() AttackOptions {
	return AttackOptions{Workers: c.Workers, Positions: c.Positions}
}
