package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileState is the on-disk layout of a File store.
type fileState struct {
	Settings *Settings `yaml:"settings,omitempty"`
	Energy   *Energy   `yaml:"energy,omitempty"`
}

// File keeps settings and energy in a single YAML file. Writes go to a
// temporary file that is renamed over the original.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile creates a store backed by path. The file is created on first save.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// LoadSettings returns the saved settings or ErrNotFound.
func (f *File) LoadSettings(ctx context.Context) (Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.read()
	if err != nil {
		return Settings{}, err
	}
	if st.Settings == nil {
		return Settings{}, ErrNotFound
	}
	return *st.Settings, nil
}

// SaveSettings validates and stores s.
func (f *File) SaveSettings(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.read()
	if err != nil {
		return err
	}
	st.Settings = &s
	return f.write(st)
}

// LoadEnergy returns the saved energy counters or ErrNotFound.
func (f *File) LoadEnergy(ctx context.Context) (Energy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.read()
	if err != nil {
		return Energy{}, err
	}
	if st.Energy == nil {
		return Energy{}, ErrNotFound
	}
	return *st.Energy, nil
}

// SaveEnergy stores e.
func (f *File) SaveEnergy(ctx context.Context, e Energy) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.read()
	if err != nil {
		return err
	}
	st.Energy = &e
	return f.write(st)
}

// Close is a no-op.
func (f *File) Close() error {
	return nil
}

// read returns an empty state if the file does not exist.
func (f *File) read() (fileState, error) {
	var st fileState

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("failed to read store file: %w", err)
	}

	if err := yaml.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("failed to parse store file: %w", err)
	}
	return st, nil
}

func (f *File) write(st fileState) error {
	data, err := yaml.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
