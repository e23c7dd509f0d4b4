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

// Hamming-weight leakage model of the first-round S-box output.
package gocpa

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"math/bits"
	"runtime"
	"strconv"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

const (
	// KeyBytes is the number of key byte positions under attack.
	KeyBytes = 16
	// NumHypotheses is the number of candidate values per key byte.
	NumHypotheses = 256
)

// ClearText holds one 16 byte plaintext block per trace.
// Row t is the plaintext that produced trace t.
type ClearText [][]byte

// LeakageModel holds, per key byte position, a NumHypotheses x #traces matrix
// of expected leakage:
//
//	model[b].At(k, t) == HW(Sbox[pt[t][b] ^ k])
type LeakageModel []*mat.Dense

// ParseKey decodes a KeyBytes long key written in hex.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "parsing key")
	}
	if len(key) != KeyBytes {
		return nil, shapeErr("key", "bytes", KeyBytes, len(key))
	}
	return key, nil
}

func HammingWeight(b byte) int {
	return bits.OnesCount8(b)
}

// Computes the expected power profile for the given plaintexts and guessed key.
// At some point in time the firmware performs the lookup and updates one of its
// registers to the sbox value. We assume the value being replaced is zero, so
// the power model is the hamming weight of the new value.
func leakModel(key byte, keyIdx int, pt ClearText, dst []float64) {
	for i := range pt {
		dst[i] = float64(HammingWeight(Sbox[pt[i][keyIdx]^key]))
	}
}

// BuildLeakageModel derives the leakage model for every key byte position and
// every hypothesis. Rows are computed independently across at most workers
// goroutines (runtime.NumCPU() if workers <= 0).
func BuildLeakageModel(ctx context.Context, pt ClearText, workers int) (LeakageModel, error) {
	if len(pt) == 0 {
		return nil, shapeErr("cleartext", "rows", 1, 0)
	}
	for i, row := range pt {
		if len(row) != KeyBytes {
			return nil, shapeErr(fmt.Sprintf("cleartext row %d", i), "columns", KeyBytes, len(row))
		}
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	model := make(LeakageModel, KeyBytes)
	for b := range model {
		model[b] = mat.NewDense(NumHypotheses, len(pt), nil)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := 0; b < KeyBytes; b++ {
		for k := 0; k < NumHypotheses; k++ {
			if err := ctx.Err(); err != nil {
				g.Wait()
				return nil, err
			}
			b, k := b, k
			g.Go(func() error {
				// Each cell owns a distinct row, no locking needed.
				leakModel(byte(k), b, pt, model[b].RawRowView(k))
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return model, nil
}

// Hypotheses returns the leakage row of hypothesis k at byte position b.
// The returned slice aliases the model.
func (m LeakageModel) Hypotheses(b, k int) []float64 {
	return m[b].RawRowView(k)
}

// ParseClearText reads whitespace separated integers, KeyBytes per plaintext.
func ParseClearText(r io.Reader) (ClearText, error) {
	scanner := bufio.NewScanner(r)
	scanner.Split(bufio.ScanWords)

	var flat []byte
	for scanner.Scan() {
		v, err := strconv.Atoi(scanner.Text())
		if err != nil {
			return nil, errors.Wrapf(err, "cleartext value %d", len(flat))
		}
		if v < 0 || v > 255 {
			return nil, &RangeError{What: "cleartext", Index: len(flat), Value: v, Min: 0, Max: 255}
		}
		flat = append(flat, byte(v))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading cleartext")
	}
	if len(flat) == 0 || len(flat)%KeyBytes != 0 {
		return nil, shapeErr("cleartext", "values", (len(flat)/KeyBytes+1)*KeyBytes, len(flat))
	}

	pt := make(ClearText, len(flat)/KeyBytes)
	for i := range pt {
		pt[i] = flat[i*KeyBytes : (i+1)*KeyBytes]
	}
	return pt, nil
}
