// Copyright 2025 Poiesic Systems
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


package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsInOrder(t *testing.T) {
	wp, err := NewWorkerPool(1, nil)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		require.NoError(t, wp.Enqueue(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}, nil))
	}
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Equal(t, 1, wp.Width())
	require.NoError(t, wp.Close(context.Background()))
}

func TestWorkerPool_CloseDropsQueued(t *testing.T) {
	wp, err := NewWorkerPool(1, nil)
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, wp.Enqueue(func() {
		close(started)
		<-release
	}, nil))
	<-started

	var dropped sync.WaitGroup
	for i := 0; i < 3; i++ {
		dropped.Add(1)
		require.NoError(t, wp.Enqueue(func() { t.Error("queued task should not run") }, dropped.Done))
	}

	// The dispatcher holds at most one task while the single worker is busy.
	assert.Eventually(t, func() bool { return wp.Queued() >= 2 }, time.Second, time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wp.Close(ctx))
	dropped.Wait()
	assert.ErrorIs(t, wp.Enqueue(func() {}, nil), ErrPoolClosed)
}
