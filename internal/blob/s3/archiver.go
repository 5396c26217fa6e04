package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sidebook/sidebook/internal/domain"
)

// Narrow store interfaces so the archiver depends only on the queries it
// runs. The Postgres stores satisfy them implicitly.

// PositionArchiveStore reads settled positions for archival.
type PositionArchiveStore interface {
	ListSettledBefore(ctx context.Context, before time.Time, limit int) ([]domain.MarketPosition, error)
}

// EventArchiveStore reads interaction events for archival.
type EventArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.InteractionEvent, error)
}

// BlobWriter uploads one object.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver serializes aged records to JSONL and uploads them to object
// storage. It never deletes from the primary store; pruning is a separate,
// explicit step run after an archive has been verified.
type Archiver struct {
	writer     BlobWriter
	positions  PositionArchiveStore
	events     EventArchiveStore
	batchLimit int
}

// NewArchiver creates an Archiver. batchLimit caps how many records one pass
// uploads.
func NewArchiver(writer BlobWriter, positions PositionArchiveStore, events EventArchiveStore, batchLimit int) *Archiver {
	if batchLimit <= 0 {
		batchLimit = 10000
	}
	return &Archiver{
		writer:     writer,
		positions:  positions,
		events:     events,
		batchLimit: batchLimit,
	}
}

// ArchiveSettledPositions uploads positions settled before the cutoff to
// archive/positions/YYYY-MM.jsonl and returns the record count.
func (a *Archiver) ArchiveSettledPositions(ctx context.Context, before time.Time) (int64, error) {
	positions, err := a.positions.ListSettledBefore(ctx, before, a.batchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions query: %w", err)
	}
	if len(positions) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(positions)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive positions marshal: %w", err)
	}

	path := archivePath("positions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive positions upload: %w", err)
	}
	return int64(len(positions)), nil
}

// ArchiveInteractionEvents uploads interaction events created before the
// cutoff to archive/events/YYYY-MM.jsonl and returns the record count.
func (a *Archiver) ArchiveInteractionEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.events.ListBefore(ctx, before, a.batchLimit)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath("events", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}
	return int64(len(events)), nil
}

// archivePath partitions archive keys by the cutoff's year-month, e.g.
// archive/positions/2026-08.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serializes records as newline-delimited JSON.
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
