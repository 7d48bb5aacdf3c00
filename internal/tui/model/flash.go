package model

import (
	"sync"
	"time"
)

const (
	infoTTL  = 3 * time.Second
	errorTTL = 6 * time.Second
)

// Flash holds the transient notice shown in the status bar.
type Flash struct {
	mu      sync.RWMutex
	message string
	isError bool
	expires time.Time
}

// Info shows msg briefly.
func (f *Flash) Info(msg string) {
	f.set(msg, false, infoTTL)
}

// Error shows msg as a failure, for longer than an info notice.
func (f *Flash) Error(msg string) {
	f.set(msg, true, errorTTL)
}

func (f *Flash) set(msg string, isError bool, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.isError = isError
	f.expires = time.Now().Add(d)
}

// Get returns the current notice, or "" once it has expired.
func (f *Flash) Get() (msg string, isError bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if time.Now().After(f.expires) {
		return "", false
	}
	return f.message, f.isError
}
