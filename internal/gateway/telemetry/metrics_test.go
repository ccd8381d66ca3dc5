// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRequestCounters(t *testing.T) {
	t.Cleanup(func() { Enable(Config{Enabled: false}) })
	Enable(Config{Enabled: true})
	assert.True(t, Enabled())

	beforeTotal := testutil.ToFloat64(requestsTotal)
	beforeBlocked := testutil.ToFloat64(requestsBlocked)
	beforeHits := testutil.ToFloat64(cacheHits)

	ObserveRequest(true, false, 5*time.Millisecond)
	ObserveRequest(false, true, 1*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(requestsTotal)-beforeTotal)
	assert.Equal(t, float64(1), testutil.ToFloat64(requestsBlocked)-beforeBlocked)
	assert.Equal(t, float64(1), testutil.ToFloat64(cacheHits)-beforeHits)
}

func TestObserveProviderCall(t *testing.T) {
	t.Cleanup(func() { Enable(Config{Enabled: false}) })
	Enable(Config{Enabled: true})

	beforeText := testutil.ToFloat64(textCallsTotal)
	beforeImage := testutil.ToFloat64(imageCallsTotal)
	beforeErr := testutil.ToFloat64(providerErrors)

	ObserveProviderCall(false, false)
	ObserveProviderCall(true, true)

	assert.Equal(t, float64(1), testutil.ToFloat64(textCallsTotal)-beforeText)
	assert.Equal(t, float64(1), testutil.ToFloat64(imageCallsTotal)-beforeImage)
	assert.Equal(t, float64(1), testutil.ToFloat64(providerErrors)-beforeErr)
}

func TestDisabledIsNoop(t *testing.T) {
	Enable(Config{Enabled: false})
	assert.False(t, Enabled())

	before := testutil.ToFloat64(requestsTotal)
	ObserveRequest(true, true, time.Millisecond)
	ObserveProviderCall(false, true)
	ObserveAggregation(true)

	assert.Equal(t, before, testutil.ToFloat64(requestsTotal))
}
