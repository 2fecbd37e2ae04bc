package blob

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestMemory_Basic(t *testing.T) {
	bs := NewMemory()
	ctx := context.Background()
	info, err := bs.Put(ctx, "runs/r1/graph.json", bytes.NewReader([]byte("data")), "application/json")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "runs/r1/graph.json" || info.Size != 4 || info.ETag == "" {
		t.Fatalf("unexpected info %#v", info)
	}
	// create-only
	if _, err := bs.Put(ctx, "runs/r1/graph.json", bytes.NewReader([]byte("x")), ""); err == nil {
		t.Fatalf("expected duplicate error")
	}
	g, rc, err := bs.Get(ctx, "runs/r1/graph.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "data" || g.ContentType != "application/json" {
		t.Fatalf("bad payload: %q %#v", b, g)
	}
	list, err := bs.List(ctx, "runs/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	if list2, err := bs.List(ctx, "other/"); err != nil || len(list2) != 0 {
		t.Fatalf("expected empty list for unmatched prefix")
	}
	ok, err := bs.Delete(ctx, "runs/r1/graph.json")
	if err != nil || !ok {
		t.Fatalf("delete expected true")
	}
	ok, _ = bs.Delete(ctx, "runs/r1/graph.json")
	if ok {
		t.Fatalf("second delete should be false")
	}
}

func TestFilesystem_AtomicCreateOnly(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFilesystem(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	info, err := fs.Put(ctx, "runs/r1/report.json", bytes.NewReader([]byte("{}")), "application/json")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 2 || info.ETag == "" {
		t.Fatalf("unexpected info %#v", info)
	}
	if _, err := fs.Put(ctx, "runs/r1/report.json", bytes.NewReader([]byte("y")), ""); err == nil {
		t.Fatalf("existing object must never be overwritten")
	}
	// no temp files survive a successful put
	entries, err := os.ReadDir(filepath.Join(root, "runs", "r1"))
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "report.json" {
		t.Fatalf("staging residue left behind: %+v", entries)
	}
	_, rc, err := fs.Get(ctx, "runs/r1/report.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	b, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(b) != "{}" {
		t.Fatalf("bad payload %q", b)
	}
	list, err := fs.List(ctx, "runs/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
}

func TestFilesystem_RejectsTraversal(t *testing.T) {
	fs, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"../escape", "/abs/path", "a/../../b", "  "} {
		if _, err := fs.Put(ctx, key, bytes.NewReader(nil), ""); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestOpen_DriverSelection(t *testing.T) {
	t.Setenv("FOODGRAPH_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", store.Driver())
	}

	t.Setenv("FOODGRAPH_BLOB_DRIVER", "invalid")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected error for invalid driver")
	}

	t.Setenv("FOODGRAPH_BLOB_DRIVER", "s3")
	t.Setenv("FOODGRAPH_BLOB_S3_BUCKET", "")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("s3 driver without bucket must fail")
	}
}
