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

// Single-acquisition captures in gzip compressed JSON.
package gocpa

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

type Trace struct {
	Key               []byte    `json:"k"`
	Pt                []byte    `json:"pt"`
	Ct                []byte    `json:"ct"`
	PowerMeasurements []float64 `json:"pm"`
	// Clock samples captured alongside PowerMeasurements, if any.
	Clock []float64 `json:"clk,omitempty"`
}

type Capture []Trace

// Exported for testing.
func LoadCaptureIo(src io.Reader) (Capture, error) {
	var capture Capture
	zipper, err := gzip.NewReader(src)
	if err != nil {
		return nil, errors.Wrap(err, "gzip NewReader failed")
	}
	decoder := json.NewDecoder(zipper)
	if err = decoder.Decode(&capture); err != nil {
		return nil, errors.Wrap(err, "JSON decoder failed")
	}
	return capture, nil
}

// Loads capture from file.
func LoadCapture(filename string) (Capture, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "Error opening capture file")
	}
	defer f.Close()
	return LoadCaptureIo(f)
}

// Exported for testing.
func (c Capture) SaveIo(dst io.Writer) error {
	var err error
	zipper := gzip.NewWriter(dst)
	encoder := json.NewEncoder(zipper)
	if err = encoder.Encode(c); err != nil {
		return errors.Wrap(err, "JSON encoder failed")
	}
	if err = zipper.Close(); err != nil {
		return errors.Wrap(err, "gzip close failed")
	}
	return nil
}

func (c Capture) Save(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "Error creating capture file")
	}
	defer f.Close()
	return c.SaveIo(f)
}

func (c Capture) hasClock() bool {
	for _, t := range c {
		if len(t.Clock) == 0 {
			return false
		}
	}
	return len(c) > 0
}

// Collects rows of equal length in a single m (#traces) by n (#samples) matrix.
//  _         _
// | -- T1  -- |
// | -- T2  -- |
// | -- ..  -- |
// | -- TM  -- |
// |_         _|
//
func (c Capture) matrix(what string, row func(Trace) []float64) (*mat.Dense, error) {
	if len(c) == 0 {
		return nil, shapeErr("capture", "traces", 1, 0)
	}
	rows := len(c)
	cols := len(row(c[0]))
	data := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		r := row(c[i])
		if len(r) != cols {
			return nil, shapeErr(fmt.Sprintf("capture trace %d", i), what, cols, len(r))
		}
		data = append(data, r...)
	}
	return mat.NewDense(rows, cols, data), nil
}

func (c Capture) SamplesMatrix() (*mat.Dense, error) {
	return c.matrix("samples", func(t Trace) []float64 { return t.PowerMeasurements })
}

func (c Capture) ClockMatrix() (*mat.Dense, error) {
	return c.matrix("clock samples", func(t Trace) []float64 { return t.Clock })
}

// Dataset views the capture as a dataset where every key byte position shares
// the same acquisition, which is how a single capture of the whole first round
// is attacked. Clocks are included if every trace carries one.
func (c Capture) Dataset() (*Dataset, error) {
	samples, err := c.SamplesMatrix()
	if err != nil {
		return nil, err
	}
	ds := &Dataset{
		ClearText: make(ClearText, len(c)),
		Traces:    make(TraceSet, KeyBytes),
	}
	for i, t := range c {
		if len(t.Pt) != KeyBytes {
			return nil, shapeErr(fmt.Sprintf("capture trace %d plaintext", i), "columns", KeyBytes, len(t.Pt))
		}
		ds.ClearText[i] = t.Pt
	}
	for b := range ds.Traces {
		ds.Traces[b] = samples
	}

	if c.hasClock() {
		clocks, err := c.ClockMatrix()
		if err != nil {
			return nil, err
		}
		ds.Clocks = make(TraceSet, KeyBytes)
		for b := range ds.Clocks {
			ds.Clocks[b] = clocks
		}
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return ds, nil
}
