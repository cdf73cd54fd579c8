package netcdf

import (
	"fmt"
	"os"
	"sync"

	"github.com/ctessum/cdf"
)

// handle is an open cache file.
type handle struct {
	file *os.File
	info os.FileInfo
	cdf  *cdf.File
}

func openHandle(path string) (*handle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	cf, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("parse netCDF header of %s: %w", path, err)
	}
	return &handle{file: f, info: info, cdf: cf}, nil
}

// handleCache keeps up to maxEntries files open, closing the least recently
// used one when full.
type handleCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value *handle
	prev  *entry
	next  *entry
}

func newHandleCache(maxEntries int) *handleCache {
	return &handleCache{
		maxEntries: max(1, maxEntries),
		entries:    make(map[string]*entry),
	}
}

// get returns the open handle for path, opening it on a miss.
func (c *handleCache) get(path string) (*handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[path]; ok {
		c.moveToFront(e)
		return e.value, nil
	}

	h, err := openHandle(path)
	if err != nil {
		return nil, err
	}
	e := &entry{key: path, value: h}
	c.entries[path] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
	return h, nil
}

// evict closes the handle of path, if open. Entries are replaced by renaming
// a new file over the path, so an open handle would keep reading the old one.
func (c *handleCache) evict(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drop(path)
}

// evictStale closes the handle of path when the file at path is no longer the
// one that was opened.
func (c *handleCache) evictStale(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[path]
	if !ok {
		return nil
	}
	if fi, err := os.Stat(path); err == nil && os.SameFile(fi, e.value.info) {
		return nil
	}
	return c.drop(path)
}

func (c *handleCache) drop(path string) error {
	e, ok := c.entries[path]
	if !ok {
		return nil
	}
	delete(c.entries, path)
	c.remove(e)
	return e.value.file.Close()
}

// closeAll closes every open file.
func (c *handleCache) closeAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for c.tail != nil {
		if err := c.evictTail(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *handleCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *handleCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *handleCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *handleCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *handleCache) evictTail() error {
	if c.tail == nil {
		return nil
	}
	e := c.tail
	delete(c.entries, e.key)
	c.remove(e)
	return e.value.file.Close()
}
