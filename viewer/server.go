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

// Serves attack reports for plotting: recovered keys, per-hypothesis score
// curves and reference clock edges.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/gocpa"
	"github.com/google/gocpa/util"

	"github.com/fsnotify/fsnotify"
	"github.com/golang/glog"
	"github.com/labstack/echo"
)

var (
	portFlag = flag.Int("port", 8080, "Server HTTP port number")
	dirFlag  = flag.String("dir", "reports", "Input reports directory to display")
)

type ByteSummary struct {
	Position    int     `json:"Position"`
	Key         string  `json:"Key"`
	Correlation float64 `json:"Corr"`
	Location    int     `json:"Loc"`
	Undefined   int     `json:"Undefined"`
}

type ReportSummary struct {
	Key      string               `json:"Key"`
	Elapsed  string               `json:"Elapsed"`
	Resample *gocpa.ResampleStats `json:"Resample,omitempty"`
	Bytes    []ByteSummary        `json:"Bytes"`
}

func projectRoot() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Dir(filepath.Dir(filename))
}

func reportsDirectory() string {
	if filepath.IsAbs(*dirFlag) {
		return *dirFlag
	}
	return path.Join(projectRoot(), *dirFlag)
}

// A go-routine that waits for directory changes.
// Notifies changes by publishing a message via broker.
func watchDirectoryChanges(broker *util.Broker) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		glog.Errorf("NewWatcher failed: %v", err)
		return
	}
	defer watcher.Close()

	err = watcher.Add(reportsDirectory())
	if err != nil {
		glog.Errorf("watcher.Add failed: %v", err)
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				glog.Warning("watcher.Events is not ok. Aborting")
				return
			}
			glog.V(1).Infof("Watcher event: %v", event)
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 &&
				strings.HasSuffix(event.Name, gocpa.ReportExt) {
				broker.Publish(event)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				glog.Warning("watcher.Errors is not ok. Aborting")
				return
			}
			glog.Warningf("Watcher error: %v", err)
		}
	}
}

// Blocks until the reports directory changes, the client goes away or five
// minutes pass.
func waitForReports(c echo.Context, watcher *util.Broker) {
	var wg sync.WaitGroup
	timedOut := time.NewTimer(5 * time.Minute)
	defer timedOut.Stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		dirChanged := watcher.Subscribe()
		defer watcher.Unsubscribe(dirChanged)

		select {
		case <-timedOut.C:
			glog.V(1).Infof("Timed out")
		case <-c.Request().Context().Done():
			glog.V(1).Infof("Client disconnected")
		case <-dirChanged:
			glog.V(1).Infof("Received dir notification from broker")
		}
	}()

	wg.Wait()
}

func loadReport(name string) (*gocpa.Report, error) {
	return gocpa.LoadReport(path.Join(reportsDirectory(), name+gocpa.ReportExt))
}

func summarize(r *gocpa.Report) ReportSummary {
	s := ReportSummary{Key: r.Key, Elapsed: r.Elapsed.String(), Resample: r.Resample}
	for _, b := range r.Bytes {
		s.Bytes = append(s.Bytes, ByteSummary{
			Position:    b.Position,
			Key:         fmt.Sprintf("%02x", b.Key),
			Correlation: b.Correlation,
			Location:    b.Location,
			Undefined:   b.Undefined,
		})
	}
	return s
}

func newServer(watchBroker *util.Broker) *echo.Echo {
	e := echo.New()

	// Returns list of report files in directory.
	e.GET("/reports", func(c echo.Context) error {
		if c.QueryParam("wait") == "true" {
			waitForReports(c, watchBroker)
		}
		files, err := filepath.Glob(path.Join(reportsDirectory(), "*"+gocpa.ReportExt))
		if err != nil {
			glog.Errorf("Glob failed: %v", err)
			return err
		}
		names := []string{}
		for _, f := range files {
			names = append(names, strings.TrimSuffix(filepath.Base(f), gocpa.ReportExt))
		}
		return c.JSON(http.StatusOK, names)
	})

	// Returns the recovered key and per-byte winners of a single report.
	e.GET("/reports/:report", func(c echo.Context) error {
		r, err := loadReport(c.Param("report"))
		if err != nil {
			glog.Errorf("Error loading report file: %v", err)
			return c.String(http.StatusNotFound, "Invalid report")
		}
		return c.JSON(http.StatusOK, summarize(r))
	})

	// Returns the reference clock edges the traces were aligned to.
	e.GET("/reports/:report/edges", func(c echo.Context) error {
		r, err := loadReport(c.Param("report"))
		if err != nil {
			glog.Errorf("Error loading report file: %v", err)
			return c.String(http.StatusNotFound, "Invalid report")
		}
		edges := r.ReferenceEdges
		if edges == nil {
			edges = []int{}
		}
		return c.JSON(http.StatusOK, edges)
	})

	// Returns the score of every hypothesis of one key byte position.
	e.GET("/reports/:report/bytes/:byte", func(c echo.Context) error {
		r, err := loadReport(c.Param("report"))
		if err != nil {
			glog.Errorf("Error loading report file: %v", err)
			return c.String(http.StatusNotFound, "Invalid report")
		}
		b, err := strconv.Atoi(c.Param("byte"))
		if err != nil {
			return c.String(http.StatusBadRequest, "Invalid byte")
		}
		res, ok := r.Byte(b)
		if !ok {
			return c.String(http.StatusNotFound, "Byte not attacked")
		}
		return c.JSON(http.StatusOK, res.Scores)
	})

	return e
}

func main() {
	flag.Parse()
	defer glog.Flush()

	watchBroker := util.NewBroker()
	go watchBroker.Start()
	go watchDirectoryChanges(watchBroker)

	e := newServer(watchBroker)
	glog.Fatal(e.Start(fmt.Sprintf(":%d", *portFlag)))
}
