// Package jobstest provides job registries for tests.
package jobstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"standupbot/internal/jobs"
)

// Mock is a testify mock of jobs.Registry.
type Mock struct {
	mock.Mock
}

var _ jobs.Registry = (*Mock)(nil)

func (m *Mock) Get(ctx context.Context, name string) (*jobs.Job, error) {
	args := m.Called(ctx, name)
	j, _ := args.Get(0).(*jobs.Job)
	return j, args.Error(1)
}

func (m *Mock) Create(ctx context.Context, job jobs.Job) error {
	return m.Called(ctx, job).Error(0)
}

func (m *Mock) Update(ctx context.Context, job jobs.Job) error {
	return m.Called(ctx, job).Error(0)
}

func (m *Mock) Delete(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

// Memory is an in-memory registry that counts mutating calls.
type Memory struct {
	mu      sync.Mutex
	jobs    map[string]jobs.Job
	Creates int
	Updates int
	Deletes int
}

var _ jobs.Registry = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{jobs: map[string]jobs.Job{}}
}

func (m *Memory) Get(_ context.Context, name string) (*jobs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[name]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", name, jobs.ErrNotFound)
	}
	return &j, nil
}

func (m *Memory) Create(_ context.Context, job jobs.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.Name]; ok {
		return fmt.Errorf("create %s: %w", job.Name, jobs.ErrAlreadyExists)
	}
	m.jobs[job.Name] = job
	m.Creates++
	return nil
}

func (m *Memory) Update(_ context.Context, job jobs.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.Name]; !ok {
		return fmt.Errorf("update %s: %w", job.Name, jobs.ErrNotFound)
	}
	m.jobs[job.Name] = job
	m.Updates++
	return nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[name]; !ok {
		return fmt.Errorf("delete %s: %w", name, jobs.ErrNotFound)
	}
	delete(m.jobs, name)
	m.Deletes++
	return nil
}

// Mutations is the total number of mutating calls that succeeded.
func (m *Memory) Mutations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Creates + m.Updates + m.Deletes
}

// Job returns the stored job and whether it exists.
func (m *Memory) Job(name string) (jobs.Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[name]
	return j, ok
}

// Put stores job without counting it as a mutation.
func (m *Memory) Put(job jobs.Job) {
	m.mu.Lock()
	m.jobs[job.Name] = job
	m.mu.Unlock()
}
