// Copyright 2021 FerretDB Inc.
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

// Package iterator provides a generic, closeable iterator interface used to
// stream documents through the storage port and the aggregation pipeline
// without materializing whole collections unless a stage requires it.
package iterator

import (
	"errors"
	"sync"
)

// ErrIteratorDone is returned by Next when the iterator has no more items.
var ErrIteratorDone = errors.New("iterator is done")

// Interface is a generic, closeable iterator.
//
// Next returns ErrIteratorDone when there are no more items.
// Close may be called multiple times and from concurrent goroutines;
// implementations must make it idempotent.
type Interface[K, V any] interface {
	Next() (K, V, error)
	Close()
}

// ConsumeValues drains iter, returning all produced values in order.
//
// The iterator is closed before returning.
func ConsumeValues[K, V any](iter Interface[K, V]) ([]V, error) {
	defer iter.Close()

	var res []V

	for {
		_, v, err := iter.Next()
		if err != nil {
			if errors.Is(err, ErrIteratorDone) {
				return res, nil
			}

			return nil, err
		}

		res = append(res, v)
	}
}

// ConsumeValuesN is like ConsumeValues, but stops after n values
// (or earlier, if the iterator is exhausted first).
//
// It does not close iter: the caller may still want to pull further values later.
func ConsumeValuesN[K, V any](iter Interface[K, V], n int) ([]V, error) {
	res := make([]V, 0, n)

	for len(res) < n {
		_, v, err := iter.Next()
		if err != nil {
			if errors.Is(err, ErrIteratorDone) {
				return res, nil
			}

			return nil, err
		}

		res = append(res, v)
	}

	return res, nil
}

// ForEach calls f for every value produced by iter, stopping at the first error
// returned either by iter or by f. The iterator is always closed.
func ForEach[K, V any](iter Interface[K, V], f func(K, V) error) error {
	defer iter.Close()

	for {
		k, v, err := iter.Next()
		if err != nil {
			if errors.Is(err, ErrIteratorDone) {
				return nil
			}

			return err
		}

		if err = f(k, v); err != nil {
			return err
		}
	}
}

// MultiCloser accumulates closeable resources (typically upstream pipeline
// stage iterators) so that closing the final iterator in a chain closes
// every iterator that fed it, even when a stage replaces its input iterator
// with a new one instead of wrapping it.
type MultiCloser struct {
	m       sync.Mutex
	closers []interface{ Close() }
}

// NewMultiCloser returns an empty MultiCloser.
func NewMultiCloser() *MultiCloser {
	return new(MultiCloser)
}

// Add registers c to be closed when the MultiCloser is closed.
func (mc *MultiCloser) Add(c interface{ Close() }) {
	mc.m.Lock()
	defer mc.m.Unlock()

	mc.closers = append(mc.closers, c)
}

// Close closes all registered closers, in reverse registration order.
func (mc *MultiCloser) Close() {
	mc.m.Lock()
	closers := mc.closers
	mc.closers = nil
	mc.m.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i].Close()
	}
}
