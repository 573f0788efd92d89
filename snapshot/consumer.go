// Copyright 2024 The Erigon Authors
// (original work)
// This file is part of snapshot-etl.
//
// snapshot-etl is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// snapshot-etl is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with snapshot-etl. If not, see <http://www.gnu.org/licenses/>.

package snapshot

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/solana-etl/snapshot-etl/appendvec"
)

// Consumer receives every AppendVec an Extractor produces. Implementations
// are responsible for closing the AppendVec once done with it.
type Consumer interface {
	OnAppendVec(av *appendvec.AppendVec) error
}

// ConsumerFunc adapts a plain function to Consumer.
type ConsumerFunc func(*appendvec.AppendVec) error

// OnAppendVec calls f.
func (f ConsumerFunc) OnAppendVec(av *appendvec.AppendVec) error { return f(av) }

// ConsumerFactory builds one Consumer per worker goroutine in ParallelDrive.
// Sinks that are not safe for concurrent use (a single sqlite connection, a
// single CSV writer) implement this to hand each worker its own instance.
type ConsumerFactory interface {
	NewConsumer() (Consumer, error)
}

// ConsumerFactoryFunc adapts a plain function to ConsumerFactory.
type ConsumerFactoryFunc func() (Consumer, error)

// NewConsumer calls f.
func (f ConsumerFactoryFunc) NewConsumer() (Consumer, error) { return f() }

// Drive pulls AppendVecs from it in order, handing each to sink, stopping at
// the first error from either the iterator or the sink.
func Drive(it AppendVecIterator, sink Consumer) error {
	var outerErr error
	it(func(av *appendvec.AppendVec, err error) bool {
		if err != nil {
			outerErr = err
			return false
		}
		if err := sink.OnAppendVec(av); err != nil {
			outerErr = err
			return false
		}
		return true
	})
	return outerErr
}

// ParallelDrive fans AppendVecs from it across numThreads worker goroutines,
// each running its own Consumer obtained from factory, connected through a
// channel bounded at numThreads entries so the producer cannot race far
// ahead of the slowest worker. The first error from the producer or any
// worker cancels ctx and is returned; all goroutines are joined before
// ParallelDrive returns.
func ParallelDrive(ctx context.Context, it AppendVecIterator, factory ConsumerFactory, numThreads int) error {
	g, ctx := errgroup.WithContext(ctx)
	work := make(chan *appendvec.AppendVec, numThreads)

	for i := 0; i < numThreads; i++ {
		sink, err := factory.NewConsumer()
		if err != nil {
			close(work)
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case av, ok := <-work:
					if !ok {
						return nil
					}
					if err := sink.OnAppendVec(av); err != nil {
						return err
					}
				}
			}
		})
	}

	g.Go(func() error {
		defer close(work)
		var iterErr error
		it(func(av *appendvec.AppendVec, err error) bool {
			if err != nil {
				iterErr = err
				return false
			}
			select {
			case work <- av:
				return true
			case <-ctx.Done():
				return false
			}
		})
		return iterErr
	})

	return g.Wait()
}
