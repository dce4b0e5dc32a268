package objstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type memObject struct {
	data        []byte
	contentType string
	modified    time.Time
	tags        Tags
}

// Memory is an in-process Store. It counts reads and writes so callers can
// assert which operations happened, and can be told to fail specific operations.
type Memory struct {
	mu      sync.Mutex
	objects map[string]map[string]*memObject
	fail    map[string]error
	now     func() time.Time

	Reads  int
	Writes int
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]map[string]*memObject),
		fail:    make(map[string]error),
		now:     time.Now,
	}
}

// Provider implements Store.
func (m *Memory) Provider() Provider { return ProviderMemory }

// Seed stores an object directly without counting a write.
func (m *Memory) Seed(container, key string, data []byte, modified time.Time, tags Tags) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bucket(container)[key] = &memObject{data: data, modified: modified, tags: tags}
}

// Object returns a copy of an object's content.
func (m *Memory) Object(container, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[container][key]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// Keys returns all keys in container, sorted.
func (m *Memory) Keys(container string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedKeys(container)
}

// Fail makes every subsequent call of the named operation (e.g. "PutTags") return err.
// A nil err clears the failure.
func (m *Memory) Fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.fail, op)
		return
	}
	m.fail[op] = err
}

func (m *Memory) bucket(container string) map[string]*memObject {
	b, ok := m.objects[container]
	if !ok {
		b = make(map[string]*memObject)
		m.objects[container] = b
	}
	return b
}

func (m *Memory) sortedKeys(container string) []string {
	keys := make([]string, 0, len(m.objects[container]))
	for k := range m.objects[container] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *Memory) lookup(op, container, key string) (*memObject, error) {
	if err := m.fail[op]; err != nil {
		return nil, err
	}
	obj, ok := m.objects[container][key]
	if !ok {
		return nil, fmt.Errorf("%s %s/%s: %w", op, container, key, ErrNotFound)
	}
	return obj, nil
}

// List implements Store. The continuation token is the index of the next key
// among those matching Prefix and StartAfter, so callers keep both across pages.
func (m *Memory) List(ctx context.Context, container string, opts ListOptions) (*ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++
	if err := m.fail["List"]; err != nil {
		return nil, err
	}

	var keys []string
	for _, k := range m.sortedKeys(container) {
		if !strings.HasPrefix(k, opts.Prefix) {
			continue
		}
		if opts.StartAfter != "" && k <= opts.StartAfter {
			continue
		}
		keys = append(keys, k)
	}

	start := 0
	if opts.ContinuationToken != "" {
		n, err := strconv.Atoi(opts.ContinuationToken)
		if err != nil {
			return nil, fmt.Errorf("invalid continuation token %q", opts.ContinuationToken)
		}
		start = n
	}
	limit := opts.MaxKeys
	if limit <= 0 {
		limit = 1000
	}

	res := &ListResult{}
	end := min(start+limit, len(keys))
	for _, k := range keys[min(start, end):end] {
		obj := m.objects[container][k]
		res.Objects = append(res.Objects, ObjectInfo{
			Container:    container,
			Key:          k,
			Size:         int64(len(obj.data)),
			LastModified: obj.modified,
			ContentType:  obj.contentType,
		})
	}
	if end < len(keys) {
		res.IsTruncated = true
		res.ContinuationToken = strconv.Itoa(end)
	}
	return res, nil
}

// Head implements Store.
func (m *Memory) Head(ctx context.Context, container, key string) (*ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++
	obj, err := m.lookup("Head", container, key)
	if err != nil {
		return nil, err
	}
	return &ObjectInfo{
		Container:    container,
		Key:          key,
		Size:         int64(len(obj.data)),
		LastModified: obj.modified,
		ContentType:  obj.contentType,
	}, nil
}

// GetRange implements Store.
func (m *Memory) GetRange(ctx context.Context, container, key string, offset, length int64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++
	obj, err := m.lookup("GetRange", container, key)
	if err != nil {
		return nil, err
	}
	size := int64(len(obj.data))
	offset = min(max(offset, 0), size)
	end := size
	if length > 0 {
		end = min(offset+length, size)
	}
	return bytes.Clone(obj.data[offset:end]), nil
}

// Download implements Store.
func (m *Memory) Download(ctx context.Context, container, key, localPath string) error {
	m.mu.Lock()
	m.Reads++
	obj, err := m.lookup("Download", container, key)
	var data []byte
	if err == nil {
		data = bytes.Clone(obj.data)
	}
	m.mu.Unlock()
	if err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o600)
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, container, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++
	if err := m.fail["Put"]; err != nil {
		return err
	}
	m.bucket(container)[key] = &memObject{data: data, contentType: contentType, modified: m.now()}
	return nil
}

// GetTags implements Store.
func (m *Memory) GetTags(ctx context.Context, container, key string) (Tags, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++
	obj, err := m.lookup("GetTags", container, key)
	if err != nil {
		return nil, err
	}
	return append(Tags(nil), obj.tags...), nil
}

// PutTags implements Store.
func (m *Memory) PutTags(ctx context.Context, container, key string, tags Tags) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++
	obj, err := m.lookup("PutTags", container, key)
	if err != nil {
		return err
	}
	obj.tags = append(Tags(nil), tags...)
	return nil
}

// TagsOf returns an object's tags without counting a read.
func (m *Memory) TagsOf(container, key string) (Tags, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[container][key]
	if !ok {
		return nil, false
	}
	return append(Tags(nil), obj.tags...), true
}
