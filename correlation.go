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

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Undefined is the score of a correlation between sequences where one of them
// has zero variance. It is NaN and must never take part in a comparison; use
// IsUndefined to filter it out.
var Undefined = math.NaN()

func IsUndefined(score float64) bool {
	return math.IsNaN(score)
}

// Correlation returns the absolute Pearson correlation coefficient of x and y:
//
//	|cov(X,Y)| / (sig(X)*sig(Y))
//
// Values close to 1 indicate a linear relationship between X and Y, values
// close to 0 indicate no relationship.
//
// If the raw mean of either input is exactly zero the result is 0. This guards
// zero-filled traces, not zero variance in general: when either centered input
// has zero norm the result is Undefined.
//
// Panics if len(x) != len(y).
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) {
		panic("gocpa: correlation of sequences with different lengths")
	}
	if len(x) == 0 {
		return Undefined
	}

	meanX := stat.Mean(x, nil)
	meanY := stat.Mean(y, nil)
	if meanX == 0 || meanY == 0 {
		return 0
	}

	var num, sxx, syy float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		num += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return Undefined
	}
	return math.Abs(num / (math.Sqrt(sxx) * math.Sqrt(syy)))
}

// centered is a leakage row prepared for repeated correlation against many
// sample columns: the mean is removed and the norm cached.
type centered struct {
	rawMean float64
	values  []float64
	norm    float64
}

func newCentered(x []float64) centered {
	c := centered{rawMean: stat.Mean(x, nil), values: make([]float64, len(x))}
	copy(c.values, x)
	floats.AddConst(-c.rawMean, c.values)
	c.norm = floats.Norm(c.values, 2)
	return c
}

// correlate computes Correlation(c, y) reusing the centered form of c.
func (c centered) correlate(y []float64) float64 {
	if len(y) != len(c.values) {
		panic("gocpa: correlation of sequences with different lengths")
	}
	meanY := stat.Mean(y, nil)
	if c.rawMean == 0 || meanY == 0 {
		return 0
	}
	var num, syy float64
	for i, v := range y {
		dy := v - meanY
		num += c.values[i] * dy
		syy += dy * dy
	}
	if c.norm == 0 || syy == 0 {
		return Undefined
	}
	return math.Abs(num / (c.norm * math.Sqrt(syy)))
}
