package content

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// StaticStore persists fetched assets on the local filesystem, laid out as
// {root}/{user_id}/{bookmark_id}/{file}. Writes are idempotent; reprocessing
// a bookmark overwrites its previous assets in place.
type StaticStore struct {
	root string
}

// NewStaticStore creates the store rooted at dir, creating it if needed.
func NewStaticStore(dir string) (*StaticStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("static root directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating static root %s: %w", dir, err)
	}
	return &StaticStore{root: dir}, nil
}

// Save writes data under the bookmark's directory and returns the public
// path clients use to fetch it.
func (s *StaticStore) Save(userID uuid.UUID, bookmarkID, name string, data []byte) (string, error) {
	if name == "" || name != filepath.Base(name) {
		return "", fmt.Errorf("invalid asset name %q", name)
	}
	dir := filepath.Join(s.root, userID.String(), bookmarkID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating bookmark directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return PublicPath(userID, bookmarkID, name), nil
}

// Open reads a previously saved asset.
func (s *StaticStore) Open(userID uuid.UUID, bookmarkID, name string) ([]byte, error) {
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid asset name %q", name)
	}
	data, err := os.ReadFile(filepath.Join(s.root, userID.String(), bookmarkID, name))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// PublicPath is the URL path under which a stored asset is served.
func PublicPath(userID uuid.UUID, bookmarkID, name string) string {
	return "/static/" + userID.String() + "/" + bookmarkID + "/" + name
}
