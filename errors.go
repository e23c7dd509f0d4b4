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
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoDefinedScore is returned when every hypothesis of a byte position
// produced an undefined (zero-variance) correlation.
var ErrNoDefinedScore = errors.New("no hypothesis produced a defined correlation")

// ShapeError reports a tensor whose dimension does not match what the
// operation requires.
type ShapeError struct {
	What     string // e.g. "traces[3]" or "cleartext"
	Dim      string // e.g. "columns", "traces", "samples"
	Expected int
	Actual   int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: unexpected number of %s (expected %d, got %d)",
		e.What, e.Dim, e.Expected, e.Actual)
}

// RangeError reports a parsed value outside its allowed range.
type RangeError struct {
	What  string
	Index int
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: value %d at index %d is outside [%d, %d]",
		e.What, e.Value, e.Index, e.Min, e.Max)
}

func shapeErr(what, dim string, expected, actual int) error {
	return &ShapeError{What: what, Dim: dim, Expected: expected, Actual: actual}
}
