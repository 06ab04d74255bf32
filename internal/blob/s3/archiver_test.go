package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
	"github.com/alanyoungcy/dutchescrow/internal/store/memory"
)

// bucket is an in-memory BlobWriter/BlobReader.
type bucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newBucket() *bucket {
	return &bucket{objects: make(map[string][]byte)}
}

func (b *bucket) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if b.failPut {
		return errors.New("upload refused")
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[path] = raw
	return nil
}

func (b *bucket) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return b.Put(ctx, path, data, "")
}

func (b *bucket) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *bucket) List(context.Context, string) ([]domain.BlobInfo, error) {
	return nil, nil
}

func (b *bucket) Exists(_ context.Context, path string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[path]
	return ok, nil
}

func TestArchiveSettlements(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSettlementStore()
	audit := memory.NewAuditStore()
	b := newBucket()
	a := NewArchiver(b, b, store, audit, slog.New(slog.DiscardHandler))

	now := time.Now().UTC()
	old := now.Add(-72 * time.Hour)
	assert.NoError(t, store.Create(ctx, domain.Settlement{ID: "old-1", Kind: domain.SettlementSettled, Price: 5, CreatedAt: old}))
	assert.NoError(t, store.Create(ctx, domain.Settlement{ID: "old-2", Kind: domain.SettlementReclaimed, CreatedAt: old.Add(time.Minute)}))
	assert.NoError(t, store.Create(ctx, domain.Settlement{ID: "new", Kind: domain.SettlementSettled, CreatedAt: now}))

	cutoff := now.Add(-24 * time.Hour)
	n, err := a.ArchiveSettlements(ctx, cutoff)
	assert.NoError(t, err)
	check.Equal(t, int64(2), n)

	rc, err := b.Get(ctx, ArchivePath(cutoff))
	assert.NoError(t, err)
	defer rc.Close()

	var ids []string
	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		var s domain.Settlement
		assert.NoError(t, json.Unmarshal(sc.Bytes(), &s))
		ids = append(ids, s.ID)
	}
	check.Equal(t, 2, len(ids))

	left, err := store.List(ctx, domain.ListOpts{})
	assert.NoError(t, err)
	check.Equal(t, 1, len(left))
	check.Equal(t, "new", left[0].ID)

	entries, err := audit.List(ctx, domain.ListOpts{})
	assert.NoError(t, err)
	check.Equal(t, 1, len(entries))
	check.Equal(t, "archive.settlements", entries[0].Event)

	// nothing left to move
	n, err = a.ArchiveSettlements(ctx, cutoff)
	assert.NoError(t, err)
	check.Equal(t, int64(0), n)
}

func TestArchiveKeepsRowsOnUploadFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSettlementStore()
	b := newBucket()
	b.failPut = true
	a := NewArchiver(b, b, store, memory.NewAuditStore(), slog.New(slog.DiscardHandler))

	assert.NoError(t, store.Create(ctx, domain.Settlement{ID: "old", CreatedAt: time.Now().Add(-72 * time.Hour)}))

	_, err := a.ArchiveSettlements(ctx, time.Now().Add(-24*time.Hour))
	check.Error(t, err)

	left, err := store.List(ctx, domain.ListOpts{})
	assert.NoError(t, err)
	check.Equal(t, 1, len(left))
}

func TestArchivePath(t *testing.T) {
	check.Equal(t, "archive/settlements/2025-01/1735689600.jsonl", ArchivePath(time.Unix(1735689600, 0)))
}

func TestNormaliseEndpoint(t *testing.T) {
	check.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	check.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	check.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
}

func TestClientKey(t *testing.T) {
	check.Equal(t, "a/b.jsonl", (&Client{}).key("a/b.jsonl"))
	check.Equal(t, "dutch/a/b.jsonl", (&Client{prefix: "dutch"}).key("/a/b.jsonl"))
}
