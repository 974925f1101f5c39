package fusion

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// MemStore is an in-memory fragment store. It backs tests and small local
// runs where no shared filesystem is available.
type MemStore struct {
	mu    sync.Mutex
	files map[string]*memFile
}

type memFile struct {
	mu       sync.Mutex
	datasets map[string]*Array
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string]*memFile)}
}

// Put stores a dataset in a file, creating the file if absent. It is a test
// convenience around OpenWriter.
func (s *MemStore) Put(name, p string, arr Array) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[name]
	if !ok {
		f = &memFile{datasets: make(map[string]*Array)}
		s.files[name] = f
	}
	f.datasets[p] = &arr
}

// Exists reports whether the store holds a file of that name.
func (s *MemStore) Exists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[name]
	return ok
}

// OpenReader implements Opener.
func (s *MemStore) OpenReader(name string) (Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("no such file: %q", name)
	}
	return &memHandle{file: f}, nil
}

// OpenWriter implements Opener.
func (s *MemStore) OpenWriter(name string) (Writer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[name]
	if !ok {
		f = &memFile{datasets: make(map[string]*Array)}
		s.files[name] = f
	}
	return &memHandle{file: f}, nil
}

// Remove implements Opener.
func (s *MemStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; !ok {
		return fmt.Errorf("no such file: %q", name)
	}
	delete(s.files, name)
	return nil
}

// memHandle serves both the Reader and the Writer side of one open file.
type memHandle struct {
	file *memFile
}

func (h *memHandle) Exists(p string) bool {
	h.file.mu.Lock()
	defer h.file.mu.Unlock()
	if _, ok := h.file.datasets[p]; ok {
		return true
	}
	prefix := p + "/"
	if p == "" {
		prefix = ""
	}
	for key := range h.file.datasets {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// children collects the immediate child names below a group, split into
// groups and datasets.
func (h *memHandle) children(group string) (groups, datasets []string) {
	h.file.mu.Lock()
	defer h.file.mu.Unlock()
	prefix := group + "/"
	if group == "" {
		prefix = ""
	}
	groupSet := make(map[string]bool)
	for key := range h.file.datasets {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			groupSet[rest[:idx]] = true
		} else {
			datasets = append(datasets, rest)
		}
	}
	for name := range groupSet {
		groups = append(groups, name)
	}
	sort.Strings(groups)
	sort.Strings(datasets)
	return groups, datasets
}

func (h *memHandle) ListGroups(group string) ([]string, error) {
	groups, _ := h.children(group)
	return groups, nil
}

func (h *memHandle) ListDatasets(group string) ([]string, error) {
	_, datasets := h.children(group)
	return datasets, nil
}

func (h *memHandle) dataset(p string) (*Array, error) {
	h.file.mu.Lock()
	defer h.file.mu.Unlock()
	arr, ok := h.file.datasets[p]
	if !ok {
		return nil, fmt.Errorf("no such dataset: %q", p)
	}
	return arr, nil
}

func (h *memHandle) Dimensions(p string) ([]int, error) {
	arr, err := h.dataset(p)
	if err != nil {
		return nil, err
	}
	dims := make([]int, len(arr.Dims))
	copy(dims, arr.Dims)
	return dims, nil
}

func (h *memHandle) DType(p string) (DType, error) {
	arr, err := h.dataset(p)
	if err != nil {
		return "", err
	}
	return arr.DType, nil
}

func (h *memHandle) Read(p string) (Array, error) {
	arr, err := h.dataset(p)
	if err != nil {
		return Array{}, err
	}
	dims := make([]int, len(arr.Dims))
	copy(dims, arr.Dims)
	data, err := newSlice(arr.DType, sliceLen(arr.Data))
	if err != nil {
		return Array{}, err
	}
	if err := copyInto(data, arr.Data, 0); err != nil {
		return Array{}, err
	}
	return Array{DType: arr.DType, Dims: dims, Data: data}, nil
}

func (h *memHandle) Preallocate(p string, dtype DType, rows int) error {
	if p != path.Clean(p) || strings.HasPrefix(p, "/") {
		return fmt.Errorf("invalid dataset path: %q", p)
	}
	data, err := newSlice(dtype, rows)
	if err != nil {
		return err
	}
	h.file.mu.Lock()
	defer h.file.mu.Unlock()
	h.file.datasets[p] = &Array{DType: dtype, Dims: []int{rows}, Data: data}
	return nil
}

func (h *memHandle) WriteAt(p string, offset int, data Array) error {
	arr, err := h.dataset(p)
	if err != nil {
		return err
	}
	h.file.mu.Lock()
	defer h.file.mu.Unlock()
	return copyInto(arr.Data, data.Data, offset)
}

func (h *memHandle) Close() error {
	return nil
}
