// Package lock provides named critical sections. Keys follow
// "vehicle:<id>" and "booking:<id>"; when both are needed the vehicle key is
// taken first.
package lock

import (
	"context"
	"fmt"
	"sync"
)

// Locker acquires the named lock and returns its release func. Acquire
// blocks until the lock is held or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func VehicleKey(vehicleID int64) string {
	return fmt.Sprintf("vehicle:%d", vehicleID)
}

func BookingKey(bookingID int64) string {
	return fmt.Sprintf("booking:%d", bookingID)
}

type entry struct {
	ch   chan struct{}
	refs int
}

// KeyedMutex is the in-process Locker. Entries are dropped once no caller
// holds or waits on them.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*entry)}
}

func (k *KeyedMutex) Acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.unref(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.unref(key, e)
		})
	}, nil
}

func (k *KeyedMutex) unref(key string, e *entry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

// Len reports how many keys are currently tracked.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}

type heldKey struct{}

// Hold acquires key through l unless ctx already holds it. The returned
// context marks key as held so nested calls on the same goroutine chain do
// not deadlock.
func Hold(ctx context.Context, l Locker, key string) (context.Context, func(), error) {
	held, _ := ctx.Value(heldKey{}).(map[string]struct{})
	if _, ok := held[key]; ok {
		return ctx, func() {}, nil
	}

	release, err := l.Acquire(ctx, key)
	if err != nil {
		return ctx, nil, err
	}

	next := make(map[string]struct{}, len(held)+1)
	for k := range held {
		next[k] = struct{}{}
	}
	next[key] = struct{}{}
	return context.WithValue(ctx, heldKey{}, next), release, nil
}
