////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package kvdb

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"gitlab.com/elixxir/cryptostore/storage/storeErrors"
)

// indexPageSize bounds the keys kept in one index page, and so the bytes a
// single insert or delete rewrites.
const indexPageSize = 128

// indexHeader is the record under <db>/<partition>#keys.
type indexHeader struct {
	Count int
	Pages int
}

// keyIndex is a transaction's view of a partition's key index. Keys live in
// pages of at most indexPageSize keys and every key has a location record
// naming its page. Adding or removing a key touches its location record, one
// page and the header, whatever the size of the partition.
type keyIndex struct {
	header     indexHeader
	dirty      bool
	pages      map[int][]string
	dirtyPages map[int]struct{}
}

// lookup reads an engine key through the transaction's pending writes.
func (t *Txn) lookup(key string) ([]byte, bool, error) {
	if w, ok := t.writes[key]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return append([]byte(nil), w.data...), true, nil
	}
	data, found, err := get(t.db.engine, key)
	if err != nil {
		return nil, false, storeErrors.New(storeErrors.Store, "get", err)
	}
	return data, found, nil
}

func (t *Txn) index(partition string) (*keyIndex, error) {
	if idx, ok := t.indexes[partition]; ok {
		return idx, nil
	}

	idx := &keyIndex{
		pages:      make(map[int][]string),
		dirtyPages: make(map[int]struct{}),
	}
	data, found, err := t.lookup(makeIndexKey(t.db.name, partition))
	if err != nil {
		return nil, errors.WithMessagef(err, "key index of %s", partition)
	}
	if found {
		if err = json.Unmarshal(data, &idx.header); err != nil {
			return nil, storeErrors.New(storeErrors.Deserialization,
				"load key index", errors.WithMessagef(err, "partition %s",
					partition))
		}
	}

	t.indexes[partition] = idx
	return idx, nil
}

func (t *Txn) page(partition string, idx *keyIndex, n int) ([]string, error) {
	if keys, ok := idx.pages[n]; ok {
		return keys, nil
	}

	data, found, err := t.lookup(makePageKey(t.db.name, partition, n))
	if err != nil {
		return nil, errors.WithMessagef(err, "index page %d of %s", n,
			partition)
	}
	var keys []string
	if found {
		if err = json.Unmarshal(data, &keys); err != nil {
			return nil, storeErrors.New(storeErrors.Deserialization,
				"load index page", errors.WithMessagef(err,
					"page %d of %s", n, partition))
		}
	}

	idx.pages[n] = keys
	return keys, nil
}

// location returns the index page holding key.
func (t *Txn) location(partition, key string) (int, bool, error) {
	data, found, err := t.lookup(makeLocationKey(t.db.name, partition, key))
	if err != nil || !found {
		return 0, false, err
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false, storeErrors.New(storeErrors.Deserialization,
			"load key location", errors.WithMessagef(err, "partition %s",
				partition))
	}
	return n, true, nil
}

// addKey appends key to the last index page, opening a new page when the
// last one is full.
func (t *Txn) addKey(partition, key string) error {
	idx, err := t.index(partition)
	if err != nil {
		return err
	}

	n := idx.header.Pages - 1
	var keys []string
	if n >= 0 {
		if keys, err = t.page(partition, idx, n); err != nil {
			return err
		}
	}
	if n < 0 || len(keys) >= indexPageSize {
		n = idx.header.Pages
		idx.header.Pages++
		keys = nil
	}

	idx.pages[n] = append(keys, key)
	idx.dirtyPages[n] = struct{}{}
	idx.header.Count++
	idx.dirty = true

	t.stage(makeLocationKey(t.db.name, partition, key),
		pendingWrite{data: []byte(strconv.Itoa(n))})
	return nil
}

func (t *Txn) removeKey(partition, key string, n int) error {
	idx, err := t.index(partition)
	if err != nil {
		return err
	}
	keys, err := t.page(partition, idx, n)
	if err != nil {
		return err
	}

	for i, k := range keys {
		if k == key {
			keys = append(keys[:i:i], keys[i+1:]...)
			break
		}
	}

	idx.pages[n] = keys
	idx.dirtyPages[n] = struct{}{}
	idx.header.Count--
	idx.dirty = true

	t.stage(makeLocationKey(t.db.name, partition, key),
		pendingWrite{deleted: true})
	return nil
}

// keys lists every key of the partition in sorted order.
func (t *Txn) keys(partition string) ([]string, error) {
	idx, err := t.index(partition)
	if err != nil {
		return nil, err
	}

	all := make([]string, 0, idx.header.Count)
	for n := 0; n < idx.header.Pages; n++ {
		keys, err := t.page(partition, idx, n)
		if err != nil {
			return nil, err
		}
		all = append(all, keys...)
	}
	sort.Strings(all)
	return all, nil
}

// flushIndexes stages the changed pages and headers as ordinary writes so
// they commit together with the records. Each header is staged after its
// pages.
func (t *Txn) flushIndexes() error {
	partitions := make([]string, 0, len(t.indexes))
	for p, idx := range t.indexes {
		if idx.dirty {
			partitions = append(partitions, p)
		}
	}
	sort.Strings(partitions)

	for _, p := range partitions {
		idx := t.indexes[p]

		pages := make([]int, 0, len(idx.dirtyPages))
		for n := range idx.dirtyPages {
			pages = append(pages, n)
		}
		sort.Ints(pages)

		for _, n := range pages {
			keys := idx.pages[n]
			if keys == nil {
				keys = []string{}
			}
			data, err := json.Marshal(keys)
			if err != nil {
				return storeErrors.New(storeErrors.Serialization,
					"flush index page", err)
			}
			t.stage(makePageKey(t.db.name, p, n), pendingWrite{data: data})
		}

		data, err := json.Marshal(idx.header)
		if err != nil {
			return storeErrors.New(storeErrors.Serialization,
				"flush key index", err)
		}
		t.stage(makeIndexKey(t.db.name, p), pendingWrite{data: data})
	}
	return nil
}
