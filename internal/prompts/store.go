// Package prompts stores named prompt texts the user runs repeatedly.
//
// Prompts live in one YAML file. Conversations are never stored.
package prompts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned for ids or names with no saved prompt.
var ErrNotFound = errors.New("prompt not found")

// Prompt is a saved prompt.
type Prompt struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Content   string    `yaml:"content" json:"content"`
	CreatedAt time.Time `yaml:"created_at" json:"createdAt"`
	UpdatedAt time.Time `yaml:"updated_at" json:"updatedAt"`
}

type file struct {
	Prompts []Prompt `yaml:"prompts"`
}

// Store reads and writes the prompts file. Every operation reads the file
// again, so several processes may share it.
type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewStore returns a Store backed by path. The file is created on the first
// write.
func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// List returns all prompts in insertion order.
func (s *Store) List() ([]Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return nil, err
	}
	return f.Prompts, nil
}

// Save adds a prompt and returns it with its new id.
func (s *Store) Save(name, content string) (Prompt, error) {
	name, content = strings.TrimSpace(name), strings.TrimSpace(content)
	if name == "" {
		return Prompt{}, errors.New("prompt name is required")
	}
	if content == "" {
		return Prompt{}, errors.New("prompt content is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return Prompt{}, err
	}

	now := s.now().UTC()
	p := Prompt{ID: uuid.NewString(), Name: name, Content: content, CreatedAt: now, UpdatedAt: now}
	f.Prompts = append(f.Prompts, p)
	if err := s.write(f); err != nil {
		return Prompt{}, err
	}
	return p, nil
}

// Update changes the name and/or content of a prompt. Empty arguments keep
// the current value.
func (s *Store) Update(id, name, content string) (Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return Prompt{}, err
	}
	for i := range f.Prompts {
		if f.Prompts[i].ID != id {
			continue
		}
		if name = strings.TrimSpace(name); name != "" {
			f.Prompts[i].Name = name
		}
		if content = strings.TrimSpace(content); content != "" {
			f.Prompts[i].Content = content
		}
		f.Prompts[i].UpdatedAt = s.now().UTC()
		if err := s.write(f); err != nil {
			return Prompt{}, err
		}
		return f.Prompts[i], nil
	}
	return Prompt{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete removes the prompt with id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := s.load()
	if err != nil {
		return err
	}
	kept := f.Prompts[:0]
	for _, p := range f.Prompts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(f.Prompts) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	f.Prompts = kept
	return s.write(f)
}

// Find returns the prompt whose id or name (case-insensitive) is key.
func (s *Store) Find(key string) (Prompt, error) {
	list, err := s.List()
	if err != nil {
		return Prompt{}, err
	}
	for _, p := range list {
		if p.ID == key {
			return p, nil
		}
	}
	for _, p := range list {
		if strings.EqualFold(p.Name, key) {
			return p, nil
		}
	}
	return Prompt{}, fmt.Errorf("%w: %s", ErrNotFound, key)
}

func (s *Store) load() (file, error) {
	var f file
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, fmt.Errorf("failed to read prompts file: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse prompts file %s: %w", s.path, err)
	}
	return f, nil
}

func (s *Store) write(f file) error {
	if f.Prompts == nil {
		f.Prompts = []Prompt{}
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode prompts: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create prompts directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".prompts-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to write prompts file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write prompts file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write prompts file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to write prompts file: %w", err)
	}
	return nil
}
