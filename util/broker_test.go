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

package util_test

import (
	"testing"
	"time"

	"github.com/google/gocpa/util"
)

func TestBrokerPublishesToSubscribers(t *testing.T) {
	b := util.NewBroker()
	go b.Start()
	defer b.Stop()

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	b.Publish("report.json.gz")

	for i, s := range []chan interface{}{s1, s2} {
		select {
		case msg := <-s:
			if msg != "report.json.gz" {
				t.Errorf("Subscriber %d received %v", i, msg)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Subscriber %d timed out", i)
		}
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := util.NewBroker()
	go b.Start()
	defer b.Stop()

	s1 := b.Subscribe()
	s2 := b.Subscribe()
	b.Unsubscribe(s1)
	b.Publish(1)

	select {
	case <-s2:
	case <-time.After(5 * time.Second):
		t.Fatalf("Subscriber timed out")
	}
	select {
	case msg := <-s1:
		t.Errorf("Unsubscribed channel received %v", msg)
	default:
	}
}
