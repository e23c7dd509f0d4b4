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

// Clock edge detection.
package gocpa

// DefaultClockThreshold is the level a clock sample has to cross to count as a
// rising edge.
const DefaultClockThreshold = 0.5

// FindEdges marks rising edges of clock. Position i of the result is true when
// clock[i] is below threshold and clock[i+1] is above it. The result has
// len(clock)-1 entries.
func FindEdges(clock []float64, threshold float64) []bool {
	if len(clock) < 2 {
		return nil
	}
	edges := make([]bool, len(clock)-1)
	for i := 1; i < len(clock); i++ {
		edges[i-1] = clock[i] > threshold && clock[i-1] < threshold
	}
	return edges
}

// EdgeIndices returns the positions of edges that are set, in ascending order.
func EdgeIndices(edges []bool) []int {
	var idx []int
	for i, e := range edges {
		if e {
			idx = append(idx, i)
		}
	}
	return idx
}

func ClockEdges(clock []float64, threshold float64) []int {
	return EdgeIndices(FindEdges(clock, threshold))
}
