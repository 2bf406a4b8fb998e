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

package task

import (
	"sort"
	"sync"
	"time"
)

type Status string

const (
	StatusPending  Status = "Pending"
	StatusRunning  Status = "Running"
	StatusComplete Status = "Complete"
	StatusFailed   Status = "Failed"
)

// Task is the progress of a batch recompute job. Done counts processed
// entities, Skipped counts fresh entities left untouched and Failed counts
// entities whose recompute returned an error.
type Task struct {
	Name       string
	Status     Status
	Done       int
	Skipped    int
	Failed     int
	Total      int
	StartTime  time.Time
	FinishTime time.Time
	Error      string
}

// Monitor tracks the progress of all jobs. It is safe for concurrent use by
// the workers of a job.
type Monitor struct {
	mu    sync.Mutex
	tasks map[string]*Task
}

func NewMonitor() *Monitor {
	return &Monitor{tasks: make(map[string]*Task)}
}

// Pending registers a job that has been scheduled but not started.
func (m *Monitor) Pending(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[name] = &Task{Name: name, Status: StatusPending}
}

// Start resets a job and marks it running.
func (m *Monitor) Start(name string, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[name] = &Task{
		Name:      name,
		Status:    StatusRunning,
		Total:     total,
		StartTime: time.Now(),
	}
}

func (m *Monitor) Done(name string, n int) {
	m.update(name, func(t *Task) { t.Done += n })
}

func (m *Monitor) Skip(name string, n int) {
	m.update(name, func(t *Task) { t.Skipped += n })
}

func (m *Monitor) FailEntity(name string) {
	m.update(name, func(t *Task) { t.Failed++ })
}

// Finish marks a job complete.
func (m *Monitor) Finish(name string) {
	m.update(name, func(t *Task) {
		t.Status = StatusComplete
		t.FinishTime = time.Now()
	})
}

// Fail marks a whole job failed.
func (m *Monitor) Fail(name string, err error) {
	m.update(name, func(t *Task) {
		t.Status = StatusFailed
		t.Error = err.Error()
		t.FinishTime = time.Now()
	})
}

func (m *Monitor) update(name string, fn func(t *Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, exist := m.tasks[name]; exist {
		fn(t)
	}
}

// Get returns a copy of a job.
func (m *Monitor) Get(name string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, exist := m.tasks[name]
	if !exist {
		return Task{}, false
	}
	return *t, true
}

// List returns copies of all jobs. Started jobs come first ordered by start
// time, pending jobs last ordered by name.
func (m *Monitor) List() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool {
		pi, pj := tasks[i].Status == StatusPending, tasks[j].Status == StatusPending
		if pi != pj {
			return pj
		}
		if pi {
			return tasks[i].Name < tasks[j].Name
		}
		if !tasks[i].StartTime.Equal(tasks[j].StartTime) {
			return tasks[i].StartTime.Before(tasks[j].StartTime)
		}
		return tasks[i].Name < tasks[j].Name
	})
	return tasks
}
