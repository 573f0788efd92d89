package snapshot

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-etl/snapshot-etl/appendvec"
)

func sequenceIterator(avs []*appendvec.AppendVec) AppendVecIterator {
	return func(yield func(*appendvec.AppendVec, error) bool) {
		for _, av := range avs {
			if !yield(av, nil) {
				return
			}
		}
	}
}

func TestDriveStopsOnSinkError(t *testing.T) {
	avs := []*appendvec.AppendVec{{}, {}, {}}
	var calls int
	failAfterFirst := ConsumerFunc(func(*appendvec.AppendVec) error {
		calls++
		if calls == 1 {
			return nil
		}
		return errors.New("boom")
	})

	err := Drive(sequenceIterator(avs), failAfterFirst)
	assert.Error(t, err, "expected error from sink")
	assert.Equal(t, 2, calls, "expected exactly 2 calls before stopping")
}

func TestParallelDriveProcessesAll(t *testing.T) {
	avs := make([]*appendvec.AppendVec, 50)
	for i := range avs {
		avs[i] = &appendvec.AppendVec{}
	}

	var processed int64
	factory := ConsumerFactoryFunc(func() (Consumer, error) {
		return ConsumerFunc(func(*appendvec.AppendVec) error {
			atomic.AddInt64(&processed, 1)
			return nil
		}), nil
	})

	err := ParallelDrive(context.Background(), sequenceIterator(avs), factory, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(len(avs)), atomic.LoadInt64(&processed))
}

func TestParallelDrivePropagatesWorkerError(t *testing.T) {
	avs := make([]*appendvec.AppendVec, 20)
	for i := range avs {
		avs[i] = &appendvec.AppendVec{}
	}

	var mu sync.Mutex
	seen := 0
	factory := ConsumerFactoryFunc(func() (Consumer, error) {
		return ConsumerFunc(func(*appendvec.AppendVec) error {
			mu.Lock()
			seen++
			n := seen
			mu.Unlock()
			if n == 5 {
				return errors.New("worker failure")
			}
			return nil
		}), nil
	})

	err := ParallelDrive(context.Background(), sequenceIterator(avs), factory, 2)
	assert.Error(t, err, "expected propagated worker error")
}
