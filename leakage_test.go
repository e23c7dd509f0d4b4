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
	"context"
	"strings"
	"testing"

	"github.com/google/gocpa"

	"github.com/pkg/errors"
)

func TestHammingWeight(t *testing.T) {
	for b, want := range map[byte]int{0x00: 0, 0x01: 1, 0x63: 4, 0xed: 6, 0xff: 8, 0x16: 3} {
		if got := gocpa.HammingWeight(b); got != want {
			t.Errorf("HammingWeight(0x%02x) = %d, expected %d", b, got, want)
		}
	}
}

func TestLeakageModelMatchesHandComputedTable(t *testing.T) {
	pt := make(gocpa.ClearText, 4)
	for i := range pt {
		pt[i] = make([]byte, gocpa.KeyBytes)
	}
	pt[0][0] = 0x00
	pt[1][0] = 0x53
	pt[2][0] = 0x10
	pt[3][0] = 0x6b
	pt[0][5] = 0xff
	pt[1][5] = 0x0f

	model, err := gocpa.BuildLeakageModel(context.Background(), pt, 4)
	if err != nil {
		t.Fatalf("BuildLeakageModel failed: %v", err)
	}

	tests := []struct {
		b, k, t int
		want    float64
	}{
		{0, 0x00, 0, 4}, // sbox[0x00] = 0x63
		{0, 0x00, 1, 6}, // sbox[0x53] = 0xed
		{0, 0x42, 2, 0}, // sbox[0x52] = 0x00
		{0, 0x2b, 3, 2}, // sbox[0x40] = 0x09
		{5, 0x00, 0, 3}, // sbox[0xff] = 0x16
		{5, 0xf0, 1, 3}, // sbox[0xff] = 0x16
		{5, 0x00, 2, 4}, // sbox[0x00] = 0x63
	}
	for _, tc := range tests {
		if got := model[tc.b].At(tc.k, tc.t); got != tc.want {
			t.Errorf("model[%d][0x%02x][%d] = %v, expected %v", tc.b, tc.k, tc.t, got, tc.want)
		}
	}

	for b := 0; b < gocpa.KeyBytes; b++ {
		for k := 0; k < gocpa.NumHypotheses; k++ {
			row := model.Hypotheses(b, k)
			for i, v := range row {
				want := float64(gocpa.HammingWeight(gocpa.Sbox[pt[i][b]^byte(k)]))
				if v != want {
					t.Fatalf("model[%d][%d][%d] = %v, expected %v", b, k, i, v, want)
				}
			}
		}
	}
}

func TestBuildLeakageModelRejectsBadShape(t *testing.T) {
	pt := gocpa.ClearText{make([]byte, 16), make([]byte, 15)}
	_, err := gocpa.BuildLeakageModel(context.Background(), pt, 0)
	var shape *gocpa.ShapeError
	if !errors.As(err, &shape) {
		t.Fatalf("Expected ShapeError, got %v", err)
	}
	if shape.Dim != "columns" || shape.Expected != 16 || shape.Actual != 15 {
		t.Errorf("Unexpected shape error %+v", shape)
	}

	if _, err = gocpa.BuildLeakageModel(context.Background(), nil, 0); err == nil {
		t.Errorf("BuildLeakageModel expected to fail on empty cleartext")
	}
}

func TestBuildLeakageModelCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pt := gocpa.ClearText{make([]byte, 16)}
	if _, err := gocpa.BuildLeakageModel(ctx, pt, 1); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestParseClearText(t *testing.T) {
	in := "0 1 2 3 4 5 6 7 8 9 10 11 12 13 14 15\n" +
		"255 254 253 252 251 250 249 248 247 246 245 244 243 242 241 240\n"
	pt, err := gocpa.ParseClearText(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ParseClearText failed: %v", err)
	}
	if len(pt) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(pt))
	}
	if pt[0][15] != 15 || pt[1][0] != 255 || pt[1][15] != 240 {
		t.Errorf("Unexpected cleartext %v", pt)
	}
}

func TestParseClearTextErrors(t *testing.T) {
	_, err := gocpa.ParseClearText(strings.NewReader("0 1 2 256 4 5 6 7 8 9 10 11 12 13 14 15"))
	var rangeErr *gocpa.RangeError
	if !errors.As(err, &rangeErr) || rangeErr.Value != 256 || rangeErr.Index != 3 {
		t.Errorf("Expected RangeError for 256 at index 3, got %v", err)
	}

	_, err = gocpa.ParseClearText(strings.NewReader("0 1 2 3"))
	var shape *gocpa.ShapeError
	if !errors.As(err, &shape) {
		t.Errorf("Expected ShapeError, got %v", err)
	}

	if _, err = gocpa.ParseClearText(strings.NewReader("0 x")); err == nil {
		t.Errorf("Expected parse error")
	}
}

func TestParseKey(t *testing.T) {
	key, err := gocpa.ParseKey("2b7e151628aed2a6abf7158809cf4f3c")
	if err != nil {
		t.Fatalf("ParseKey failed: %v", err)
	}
	if key[0] != 0x2b || key[15] != 0x3c {
		t.Errorf("Unexpected key %x", key)
	}

	var shape *gocpa.ShapeError
	if _, err = gocpa.ParseKey("2b7e"); !errors.As(err, &shape) || shape.Actual != 2 {
		t.Errorf("Expected ShapeError for short key, got %v", err)
	}
	if _, err = gocpa.ParseKey("zz"); err == nil {
		t.Errorf("Expected error for invalid hex")
	}
}
