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

// Loads and saves acquisition sets stored as whitespace separated text files:
//
//	<dir>/cleartext.txt  16 integers per trace
//	<dir>/trace<b>.txt   #traces x #samples power measurements for key byte b
//	<dir>/clock<b>.txt   #traces x #samples clock samples for key byte b
package gocpa

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

const (
	clearTextFile = "cleartext.txt"
)

// Dataset is a fully materialized acquisition set.
type Dataset struct {
	ClearText ClearText
	Traces    TraceSet
	// Clocks is nil for sample-synchronous acquisitions.
	Clocks TraceSet
}

func TraceFile(dir string, b int) string {
	return filepath.Join(dir, fmt.Sprintf("trace%d.txt", b))
}

func ClockFile(dir string, b int) string {
	return filepath.Join(dir, fmt.Sprintf("clock%d.txt", b))
}

// ParseTraceMatrix reads whitespace separated measurements and arranges them in
// numTraces rows. The number of values must be a multiple of numTraces.
func ParseTraceMatrix(r io.Reader, numTraces int) (*mat.Dense, error) {
	if numTraces <= 0 {
		return nil, shapeErr("trace matrix", "traces", 1, numTraces)
	}
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	var data []float64
	for scanner.Scan() {
		v, err := strconv.ParseFloat(scanner.Text(), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "sample %d", len(data))
		}
		data = append(data, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading samples")
	}
	if len(data) == 0 || len(data)%numTraces != 0 {
		return nil, shapeErr("trace matrix", "values", (len(data)/numTraces+1)*numTraces, len(data))
	}
	return mat.NewDense(numTraces, len(data)/numTraces, data), nil
}

func loadTraceFile(filename string, numTraces int) (*mat.Dense, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "opening trace file")
	}
	defer f.Close()
	m, err := ParseTraceMatrix(f, numTraces)
	if err != nil {
		return nil, errors.Wrap(err, filename)
	}
	return m, nil
}

func LoadClearText(filename string) (ClearText, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "opening cleartext file")
	}
	defer f.Close()
	pt, err := ParseClearText(f)
	if err != nil {
		return nil, errors.Wrap(err, filename)
	}
	return pt, nil
}

// LoadDataset loads a dataset directory. The trace count of every file is
// taken from the number of plaintexts, the sample count from the file size.
// Clock files are only read if withClocks is set.
func LoadDataset(dir string, withClocks bool) (*Dataset, error) {
	pt, err := LoadClearText(filepath.Join(dir, clearTextFile))
	if err != nil {
		return nil, err
	}

	ds := &Dataset{ClearText: pt, Traces: make(TraceSet, KeyBytes)}
	if withClocks {
		ds.Clocks = make(TraceSet, KeyBytes)
	}

	var g errgroup.Group
	for b := 0; b < KeyBytes; b++ {
		b := b
		g.Go(func() (err error) {
			ds.Traces[b], err = loadTraceFile(TraceFile(dir, b), len(pt))
			return err
		})
		if withClocks {
			g.Go(func() (err error) {
				ds.Clocks[b], err = loadTraceFile(ClockFile(dir, b), len(pt))
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}

	_, samples := ds.Traces[0].Dims()
	glog.Infof("Loaded dataset with %d traces / %d samples per trace", len(pt), samples)
	return ds, nil
}

// Validate checks that every position has one trace per plaintext and that
// clocks, if present, match the traces.
func (ds *Dataset) Validate() error {
	if len(ds.Traces) != KeyBytes {
		return shapeErr("traces", "positions", KeyBytes, len(ds.Traces))
	}
	if ds.Clocks != nil && len(ds.Clocks) != KeyBytes {
		return shapeErr("clocks", "positions", KeyBytes, len(ds.Clocks))
	}
	for b := range ds.Traces {
		r, c := ds.Traces[b].Dims()
		if r != len(ds.ClearText) {
			return shapeErr(fmt.Sprintf("traces[%d]", b), "traces", len(ds.ClearText), r)
		}
		if ds.Clocks == nil {
			continue
		}
		cr, cc := ds.Clocks[b].Dims()
		if cr != r {
			return shapeErr(fmt.Sprintf("clocks[%d]", b), "traces", r, cr)
		}
		if cc != c {
			return shapeErr(fmt.Sprintf("clocks[%d]", b), "samples", c, cc)
		}
	}
	return nil
}

// Save writes the dataset in the layout read by LoadDataset.
func (ds *Dataset) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating dataset directory")
	}
	if err := writeFile(filepath.Join(dir, clearTextFile), func(w *bufio.Writer) error {
		return writeClearText(w, ds.ClearText)
	}); err != nil {
		return err
	}
	for b := range ds.Traces {
		m := ds.Traces[b]
		if err := writeFile(TraceFile(dir, b), func(w *bufio.Writer) error {
			return writeMatrix(w, m)
		}); err != nil {
			return err
		}
		if ds.Clocks == nil {
			continue
		}
		m = ds.Clocks[b]
		if err := writeFile(ClockFile(dir, b), func(w *bufio.Writer) error {
			return writeMatrix(w, m)
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(filename string, fn func(w *bufio.Writer) error) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "creating dataset file")
	}
	w := bufio.NewWriter(f)
	if err = fn(w); err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return errors.Wrap(err, filename)
}

func writeClearText(w io.Writer, pt ClearText) error {
	for _, row := range pt {
		for i, v := range row {
			sep := " "
			if i == len(row)-1 {
				sep = "\n"
			}
			if _, err := fmt.Fprintf(w, "%d%s", v, sep); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeMatrix(w io.Writer, m *mat.Dense) error {
	r, _ := m.Dims()
	for i := 0; i < r; i++ {
		for j, v := range m.RawRowView(i) {
			if j > 0 {
				if _, err := io.WriteString(w, " "); err != nil {
					return err
				}
			}
			if _, err := io.WriteString(w, strconv.FormatFloat(v, 'g', -1, 64)); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}
