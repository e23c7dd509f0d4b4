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

// Attack reports: the recovered key together with the intermediate scores,
// stored in the same gzip compressed JSON format as captures.
package gocpa

import (
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
)

const ReportExt = ".report.json.gz"

type Report struct {
	Key   string          `json:"key"`
	Bytes []KeyByteResult `json:"bytes"`
	// Resample is nil for sample-synchronous datasets.
	Resample *ResampleStats `json:"resample,omitempty"`
	// ReferenceEdges are the clock edges traces were aligned to.
	ReferenceEdges []int         `json:"ref_edges,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`
}

func NewReport(res *Result, stats *ResampleStats, ref []int, elapsed time.Duration) *Report {
	return &Report{
		Key:            res.KeyHex(),
		Bytes:          res.Bytes,
		Resample:       stats,
		ReferenceEdges: ref,
		Elapsed:        elapsed,
	}
}

// Byte returns the result of key byte position b, or false if b was not
// attacked.
func (r *Report) Byte(b int) (KeyByteResult, bool) {
	for _, res := range r.Bytes {
		if res.Position == b {
			return res, true
		}
	}
	return KeyByteResult{}, false
}

// Exported for testing.
func (r *Report) SaveIo(dst io.Writer) error {
	zipper := gzip.NewWriter(dst)
	if err := json.NewEncoder(zipper).Encode(r); err != nil {
		return errors.Wrap(err, "JSON encoder failed")
	}
	if err := zipper.Close(); err != nil {
		return errors.Wrap(err, "gzip close failed")
	}
	return nil
}

func (r *Report) Save(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "Error creating report file")
	}
	if err = r.SaveIo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Exported for testing.
func LoadReportIo(src io.Reader) (*Report, error) {
	zipper, err := gzip.NewReader(src)
	if err != nil {
		return nil, errors.Wrap(err, "gzip NewReader failed")
	}
	r := &Report{}
	if err = json.NewDecoder(zipper).Decode(r); err != nil {
		return nil, errors.Wrap(err, "JSON decoder failed")
	}
	return r, nil
}

func LoadReport(filename string) (*Report, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "Error opening report file")
	}
	defer f.Close()
	return LoadReportIo(f)
}
