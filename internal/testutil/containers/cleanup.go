//go:build integration

package containers

import (
	"fmt"
	"sync"
)

// CleanupManager tears down test resources registered during TestMain.
// Teardown runs in LIFO order so dependents stop before their containers.
type CleanupManager struct {
	mu    sync.Mutex
	steps []cleanupStep
}

type cleanupStep struct {
	name string
	fn   func() error
}

// NewCleanupManager creates an empty CleanupManager.
func NewCleanupManager() *CleanupManager {
	return &CleanupManager{}
}

// Add registers a named teardown step.
func (cm *CleanupManager) Add(name string, fn func() error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.steps = append(cm.steps, cleanupStep{name: name, fn: fn})
}

// Cleanup runs every registered step in reverse registration order and
// returns the failures. Steps run outside the lock so a teardown may still
// call Add without deadlocking; later additions belong to the next Cleanup.
func (cm *CleanupManager) Cleanup() []error {
	cm.mu.Lock()
	steps := cm.steps
	cm.steps = nil
	cm.mu.Unlock()

	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		if err := steps[i].fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s cleanup failed: %w", steps[i].name, err))
		}
	}
	return errs
}
