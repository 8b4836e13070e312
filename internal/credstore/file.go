package credstore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// File is a Store persisted as two yaml documents: a global one (normally
// under the user's home) and a local one for the working directory. Session
// keys always live in the global document.
type File struct {
	mu         sync.RWMutex
	globalPath string
	localPath  string
	global     document
	local      document
}

var _ Store = (*File)(nil)

// OpenFile loads both documents. Missing files are treated as empty.
func OpenFile(globalPath, localPath string) (*File, error) {
	f := &File{globalPath: globalPath, localPath: localPath}
	if err := readDocument(globalPath, &f.global); err != nil {
		return nil, err
	}
	if err := readDocument(localPath, &f.local); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return lookup(&f.local, &f.global, key)
}

func (f *File) Set(key, value string, local bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if local {
		next := f.local.clone()
		setValue(&next, key, value)
		if err := writeDocument(f.localPath, &next); err != nil {
			return err
		}
		f.local = next
		return nil
	}
	next := f.global.clone()
	setValue(&next, key, value)
	if err := writeDocument(f.globalPath, &next); err != nil {
		return err
	}
	f.global = next
	return nil
}

// SetSessionKey only replaces the in-memory key once it is on disk.
func (f *File) SetSessionKey(provider, key string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	next := f.global.clone()
	setSessionKey(&next, provider, key, expiresAt)
	if err := writeDocument(f.globalPath, &next); err != nil {
		return err
	}
	f.global = next
	return nil
}

func (f *File) SessionKey(provider string) (SessionKey, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	sk, ok := f.global.SessionKeys[provider]
	return sk, ok
}

func readDocument(path string, d *document) error {
	if path == "" {
		return nil
	}
	buf, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return xerrors.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(buf, d); err != nil {
		return xerrors.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// writeDocument replaces path atomically. The file holds session keys, so it
// is only readable by the owner.
func writeDocument(path string, d *document) error {
	if path == "" {
		return nil
	}
	buf, err := yaml.Marshal(d)
	if err != nil {
		return xerrors.Errorf("marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return xerrors.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return xerrors.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf); err != nil {
		_ = tmp.Close()
		return xerrors.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return xerrors.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return xerrors.Errorf("chmod %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return xerrors.Errorf("rename %s: %w", path, err)
	}
	return nil
}
