// Copyright 2025 Flexstats, Inc.
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

package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTrackerConsume(t *testing.T) {
	tracker := NewTracker("test", 100)
	require.Equal(t, int64(0), tracker.BytesConsumed())
	tracker.Consume(60)
	require.Equal(t, int64(60), tracker.BytesConsumed())
	require.False(t, tracker.Exceeded())
	tracker.Consume(60)
	require.True(t, tracker.Exceeded())
	tracker.Consume(-60)
	require.False(t, tracker.Exceeded())
}

func TestTrackerNoLimit(t *testing.T) {
	tracker := NewTracker("test", 0)
	tracker.Consume(1 << 40)
	require.False(t, tracker.Exceeded())
	tracker.SetBytesLimit(1)
	require.True(t, tracker.Exceeded())
	require.Equal(t, int64(1), tracker.GetBytesLimit())
}

func TestTrackerConcurrentConsume(t *testing.T) {
	tracker := NewTracker("test", 0)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				tracker.Consume(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(10000), tracker.BytesConsumed())
}
