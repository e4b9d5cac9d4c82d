// Package fs implements the snapshot archive on the local filesystem.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stockcore/internal/archive/core"
)

var _ core.Store = (*Store)(nil)

// Store maps archive keys to files under a root directory. Each object gets a
// JSON sidecar (key + ".meta") holding content type, user metadata, and the
// checksum. Writes are create-only and land via an atomic rename, so a key
// either holds a complete object or nothing.
type Store struct {
	root string
}

// New returns a filesystem archive rooted at path, creating it if needed. An
// empty root defaults to ./archivedata.
func New(root string) (*Store, error) {
	if root == "" {
		root = "./archivedata"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

// Driver reports the backend identifier.
func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// metaSidecar is the persisted form of the object metadata sidecar.
type metaSidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size"`
	StoredAt    time.Time         `json:"stored_at"`
}

// resolve validates key against path traversal and maps it to the object and
// sidecar paths under the root.
func (s *Store) resolve(key string) (dataPath, metaPath string, err error) {
	if strings.TrimSpace(key) == "" {
		return "", "", fmt.Errorf("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", "", fmt.Errorf("invalid absolute key %s", key)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if clean == ".." || strings.HasPrefix(clean, "../") || strings.Contains(key, "..") {
		return "", "", fmt.Errorf("invalid key %s escapes the archive root", key)
	}
	dataPath = filepath.Join(s.root, clean)
	metaPath = dataPath + ".meta"
	return dataPath, metaPath, nil
}

// Put stores a new object under key. A key that already holds an object is
// rejected: snapshots are immutable once written.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	dataPath, metaPath, err := s.resolve(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return core.Info{}, fmt.Errorf("archive object %s already exists", key)
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return core.Info{}, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".partial-*")
	if err != nil {
		return core.Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	digest := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, digest), r)
	if err != nil {
		_ = tmp.Close()
		return core.Info{}, err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return core.Info{}, err
	}
	if err := tmp.Close(); err != nil {
		return core.Info{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return core.Info{}, err
	}

	now := time.Now().UTC()
	sidecar := metaSidecar{
		ContentType: opts.ContentType,
		Metadata:    cloneMetadata(opts.Metadata),
		ETag:        hex.EncodeToString(digest.Sum(nil)),
		Size:        size,
		StoredAt:    now,
	}
	raw, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return core.Info{}, err
	}
	if err := os.WriteFile(metaPath, raw, 0o644); err != nil {
		return core.Info{}, err
	}
	return s.infoFor(key, sidecar), nil
}

// Get returns the object metadata and an open reader over its content.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	dataPath, metaPath, err := s.resolve(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	file, err := os.Open(dataPath)
	if err != nil {
		return core.Info{}, nil, err
	}
	sidecar, err := readSidecar(metaPath)
	if err != nil {
		_ = file.Close()
		return core.Info{}, nil, err
	}
	return s.infoFor(key, sidecar), file, nil
}

// Head returns object metadata only.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	_, metaPath, err := s.resolve(key)
	if err != nil {
		return core.Info{}, err
	}
	sidecar, err := readSidecar(metaPath)
	if err != nil {
		return core.Info{}, err
	}
	return s.infoFor(key, sidecar), nil
}

// Delete removes the object and its sidecar, reporting whether it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	dataPath, metaPath, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(dataPath); errors.Is(err, iofs.ErrNotExist) {
		return false, nil
	}
	if err := os.Remove(dataPath); err != nil {
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}

// List walks the root collecting sidecars and returns objects matching the
// key prefix, ordered by key.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var infos []core.Info
	err := filepath.WalkDir(s.root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".meta") {
			return nil
		}
		sidecar, err := readSidecar(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, ".meta"))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			infos = append(infos, s.infoFor(key, sidecar))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// PresignURL returns a stable local pseudo URL. Only GET is supported; there
// is no auth to sign against on a local filesystem.
func (s *Store) PresignURL(_ context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if opts.Method != "" && !strings.EqualFold(opts.Method, "GET") {
		return "", core.ErrUnsupported
	}
	if _, _, err := s.resolve(key); err != nil {
		return "", err
	}
	return localURL(key), nil
}

func (s *Store) infoFor(key string, sidecar metaSidecar) core.Info {
	return core.Info{
		Key:          key,
		Size:         sidecar.Size,
		ContentType:  sidecar.ContentType,
		ETag:         sidecar.ETag,
		Metadata:     cloneMetadata(sidecar.Metadata),
		LastModified: sidecar.StoredAt,
		URL:          localURL(key),
	}
}

func readSidecar(path string) (metaSidecar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return metaSidecar{}, err
	}
	var sidecar metaSidecar
	if err := json.Unmarshal(raw, &sidecar); err != nil {
		return metaSidecar{}, err
	}
	return sidecar, nil
}

func localURL(key string) string {
	return (&url.URL{Scheme: "http", Host: "local.archive", Path: "/" + key}).String()
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
