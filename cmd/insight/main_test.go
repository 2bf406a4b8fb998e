// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
)

type mockLoop struct {
	err      error
	canceled atomic.Bool
}

func (m *mockLoop) RunTasksLoop(ctx context.Context) error {
	if m.err != nil {
		return m.err
	}
	<-ctx.Done()
	m.canceled.Store(true)
	return ctx.Err()
}

type mockServer struct {
	err      error
	stopped  chan struct{}
	shutdown atomic.Bool
}

func newMockServer(err error) *mockServer {
	return &mockServer{err: err, stopped: make(chan struct{})}
}

func (m *mockServer) StartHttpServer() error {
	if m.err != nil {
		return m.err
	}
	<-m.stopped
	return nil
}

func (m *mockServer) Shutdown(context.Context) error {
	if m.shutdown.CompareAndSwap(false, true) {
		close(m.stopped)
	}
	return nil
}

func TestServeServerFailure(t *testing.T) {
	loop := &mockLoop{}
	srv := newMockServer(errors.New("address already in use"))
	err := serve(context.Background(), loop, srv)
	assert.ErrorContains(t, err, "address already in use")
	assert.True(t, loop.canceled.Load())
}

func TestServeLoopFailure(t *testing.T) {
	loop := &mockLoop{err: errors.New("cache store unavailable")}
	srv := newMockServer(nil)
	err := serve(context.Background(), loop, srv)
	assert.ErrorContains(t, err, "cache store unavailable")
	assert.True(t, srv.shutdown.Load())
}

func TestServeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loop := &mockLoop{}
	srv := newMockServer(nil)
	time.AfterFunc(10*time.Millisecond, cancel)
	assert.NoError(t, serve(ctx, loop, srv))
	assert.True(t, loop.canceled.Load())
	assert.True(t, srv.shutdown.Load())
}
