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

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/google/gocpa"
	"github.com/google/gocpa/util"
)

func writeTestReport(t *testing.T, dir string) *gocpa.Report {
	scores := make([]gocpa.HypothesisScore, gocpa.NumHypotheses)
	for k := range scores {
		scores[k] = gocpa.HypothesisScore{Key: byte(k), Correlation: 0.1, Location: 4, Defined: true}
	}
	scores[0x2a].Correlation = 0.9
	key := make([]byte, gocpa.KeyBytes)
	key[1] = 0x2a
	res := &gocpa.Result{Key: key, Bytes: []gocpa.KeyByteResult{
		{Position: 1, Key: 0x2a, Correlation: 0.9, Location: 4, Scores: scores},
	}}
	r := gocpa.NewReport(res, &gocpa.ResampleStats{Traces: 3}, []int{3, 11}, time.Second)
	if err := r.Save(filepath.Join(dir, "run1"+gocpa.ReportExt)); err != nil {
		t.Fatal(err)
	}
	return r
}

func get(t *testing.T, broker *util.Broker, target string, out interface{}) int {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	newServer(broker).ServeHTTP(rec, req)
	if rec.Code == http.StatusOK && out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("GET %s returned invalid JSON: %v", target, err)
		}
	}
	return rec.Code
}

func TestServer(t *testing.T) {
	dir := t.TempDir()
	*dirFlag = dir
	writeTestReport(t, dir)
	broker := util.NewBroker()

	var names []string
	if code := get(t, broker, "/reports", &names); code != http.StatusOK {
		t.Fatalf("GET /reports returned %d", code)
	}
	if !reflect.DeepEqual(names, []string{"run1"}) {
		t.Errorf("Unexpected report list %v", names)
	}

	var summary ReportSummary
	if code := get(t, broker, "/reports/run1", &summary); code != http.StatusOK {
		t.Fatalf("GET /reports/run1 returned %d", code)
	}
	if summary.Key != "002a0000000000000000000000000000" || len(summary.Bytes) != 1 ||
		summary.Bytes[0].Key != "2a" || summary.Resample == nil || summary.Resample.Traces != 3 {
		t.Errorf("Unexpected summary %+v", summary)
	}

	var edges []int
	if code := get(t, broker, "/reports/run1/edges", &edges); code != http.StatusOK {
		t.Fatalf("GET edges returned %d", code)
	}
	if !reflect.DeepEqual(edges, []int{3, 11}) {
		t.Errorf("Unexpected edges %v", edges)
	}

	var scores []gocpa.HypothesisScore
	if code := get(t, broker, "/reports/run1/bytes/1", &scores); code != http.StatusOK {
		t.Fatalf("GET scores returned %d", code)
	}
	if len(scores) != gocpa.NumHypotheses || scores[0x2a].Correlation != 0.9 {
		t.Errorf("Unexpected scores %v", scores)
	}

	if code := get(t, broker, "/reports/run1/bytes/0", nil); code != http.StatusNotFound {
		t.Errorf("GET for a byte that was not attacked returned %d", code)
	}
	if code := get(t, broker, "/reports/run1/bytes/x", nil); code != http.StatusBadRequest {
		t.Errorf("GET for an invalid byte returned %d", code)
	}
	if code := get(t, broker, "/reports/missing", nil); code != http.StatusNotFound {
		t.Errorf("GET for a missing report returned %d", code)
	}
}
