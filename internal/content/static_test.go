package content

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestStaticStore_SaveAndOpen(t *testing.T) {
	store, err := NewStaticStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStaticStore() error: %v", err)
	}

	userID := uuid.New()
	public, err := store.Save(userID, "abc123", "index.html", []byte("<p>hi</p>"))
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	want := "/static/" + userID.String() + "/abc123/index.html"
	if public != want {
		t.Errorf("Save() path = %q, want %q", public, want)
	}

	data, err := store.Open(userID, "abc123", "index.html")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if string(data) != "<p>hi</p>" {
		t.Errorf("Open() = %q", data)
	}
}

func TestStaticStore_SaveOverwrites(t *testing.T) {
	store, err := NewStaticStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	userID := uuid.New()
	if _, err := store.Save(userID, "bm", "index.html", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save(userID, "bm", "index.html", []byte("v2")); err != nil {
		t.Fatalf("Save() overwrite error: %v", err)
	}
	data, err := store.Open(userID, "bm", "index.html")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v2" {
		t.Errorf("Open() after overwrite = %q, want v2", data)
	}
}

func TestStaticStore_RejectsPathEscapes(t *testing.T) {
	root := t.TempDir()
	store, err := NewStaticStore(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", "../../etc/passwd", "a/b.png", ".."} {
		if _, err := store.Save(uuid.New(), "bm", name, []byte("x")); err == nil {
			t.Errorf("Save(%q) expected error, got nil", name)
		}
		if _, err := store.Open(uuid.New(), "bm", name); err == nil {
			t.Errorf("Open(%q) expected error, got nil", name)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "..", "etc")); err == nil {
		t.Error("store wrote outside its root")
	}
}
