////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package kvdb

import (
	"context"
	"sort"

	"golang.org/x/sync/semaphore"
)

// maxReaders is the weight of a partition lock. A reader takes one unit and
// a writer takes all of them. semaphore.Weighted queues waiters in order, so
// a waiting writer holds back later readers and cannot be starved.
const maxReaders = 1 << 30

func newPartitionLock() *semaphore.Weighted {
	return semaphore.NewWeighted(maxReaders)
}

// acquire locks the partitions in sorted order, which rules out deadlocks
// between transactions with overlapping scopes. On failure every lock taken
// so far is released.
func acquire(ctx context.Context, mode Mode, locks map[string]*semaphore.Weighted) (func(), error) {
	names := make([]string, 0, len(locks))
	for name := range locks {
		names = append(names, name)
	}
	sort.Strings(names)

	weight := int64(1)
	if mode == ReadWrite {
		weight = maxReaders
	}

	held := make([]*semaphore.Weighted, 0, len(names))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Release(weight)
		}
	}

	for _, name := range names {
		sem := locks[name]
		if err := sem.Acquire(ctx, weight); err != nil {
			release()
			return nil, err
		}
		held = append(held, sem)
	}

	return release, nil
}
