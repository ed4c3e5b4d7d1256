package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileName is the document the File backend writes inside its directory.
const FileName = "session.json"

// File keeps all entries in one JSON document, rewritten atomically on every
// change. Entries are grouped by profile.
type File struct {
	mu      sync.Mutex
	path    string
	profile string
}

// NewFile returns a File backend rooted at dir. The directory is created on
// first write.
func NewFile(dir, profile string) *File {
	return &File{path: filepath.Join(dir, FileName), profile: profile}
}

// Path returns the document location.
func (f *File) Path() string { return f.path }

type fileDoc map[string]map[string]string // profile -> key -> value

func (f *File) read() (fileDoc, error) {
	b, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return fileDoc{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "storage: read %s", f.path)
	}
	doc := fileDoc{}
	if len(b) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrapf(err, "storage: decode %s", f.path)
	}
	return doc, nil
}

func (f *File) write(doc fileDoc) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "storage: mkdir %s", dir)
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "storage: encode session document")
	}
	tmp, err := os.CreateTemp(dir, FileName+".*")
	if err != nil {
		return errors.Wrap(err, "storage: create temp file")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return errors.Wrap(err, "storage: write temp file")
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "storage: chmod temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "storage: close temp file")
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.Wrapf(err, "storage: rename to %s", f.path)
	}
	return nil
}

// Get returns the value stored under key for this profile.
func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return "", err
	}
	v, ok := doc[f.profile][key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set stores value under key for this profile.
func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		// A corrupt document is replaced rather than blocking every login.
		doc = fileDoc{}
	}
	if doc[f.profile] == nil {
		doc[f.profile] = map[string]string{}
	}
	doc[f.profile][key] = value
	return f.write(doc)
}

// Delete removes keys for this profile. A corrupt document is discarded.
func (f *File) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		doc = fileDoc{}
	}
	entries := doc[f.profile]
	for _, k := range keys {
		delete(entries, k)
	}
	if len(entries) == 0 {
		delete(doc, f.profile)
	}
	return f.write(doc)
}
