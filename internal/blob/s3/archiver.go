package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// multipartThreshold switches uploads to the transfer manager.
const multipartThreshold = 16 * 1024 * 1024

// SettlementArchiver implements domain.Archiver. It copies settlements older
// than a cutoff into one JSONL object, checks the object landed, and only then
// removes the rows from the primary store.
type SettlementArchiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	store  domain.SettlementStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates a SettlementArchiver.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	store domain.SettlementStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *SettlementArchiver {
	return &SettlementArchiver{
		writer: writer,
		reader: reader,
		store:  store,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSettlements moves settlements created before the cutoff to object
// storage and returns how many were moved.
func (a *SettlementArchiver) ArchiveSettlements(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements marshal: %w", err)
	}

	path := ArchivePath(before)
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements upload: %w", err)
	}

	ok, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements verify: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("s3blob: archive settlements verify: %s missing after upload", path)
	}

	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements prune: %w", err)
	}

	count := int64(len(rows))
	if deleted != count {
		a.logger.WarnContext(ctx, "archived and pruned counts differ",
			slog.Int64("archived", count),
			slog.Int64("pruned", deleted),
		)
	}
	if err := a.audit.Log(ctx, "archive.settlements", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive settlements audit log: %w", err)
	}

	a.logger.InfoContext(ctx, "settlements archived",
		slog.String("path", path),
		slog.Int64("count", count),
	)
	return count, nil
}

// ArchivePath is the object key for a cutoff, partitioned by month:
//
//	archive/settlements/2025-01/1735689600.jsonl
func ArchivePath(before time.Time) string {
	before = before.UTC()
	return fmt.Sprintf("archive/settlements/%s/%d.jsonl", before.Format("2006-01"), before.Unix())
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
