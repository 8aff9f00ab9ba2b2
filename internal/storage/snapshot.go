package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"streampulse/internal/models"
)

// Snapshot is a complete JSON-serialisable view of the datastore. Its shape
// matches the JSON store file, so an existing store.json can be loaded and
// replayed into another backing store.
type Snapshot struct {
	Sessions          map[string]models.Session               `json:"sessions"`
	Vods              map[string]models.Vod                   `json:"vods"`
	Templates         map[string]models.DefaultStreamTemplate `json:"templates"`
	PendingThumbnails map[string]models.PendingThumbnail      `json:"pendingThumbnails"`
}

// SnapshotCounts summarises the size of each collection in a Snapshot so
// operators can see how much data will be imported.
type SnapshotCounts struct {
	Sessions          int
	Vods              int
	Templates         int
	PendingThumbnails int
}

// LoadSnapshotFromJSON reads a JSON store file from disk.
func LoadSnapshotFromJSON(path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot %s: %w", path, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	var snapshot Snapshot
	if err := decoder.Decode(&snapshot); err != nil {
		if err == io.EOF {
			snapshot.ensureInitialized()
			return &snapshot, nil
		}
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	snapshot.ensureInitialized()
	return &snapshot, nil
}

func (s *Snapshot) ensureInitialized() {
	if s.Sessions == nil {
		s.Sessions = make(map[string]models.Session)
	}
	if s.Vods == nil {
		s.Vods = make(map[string]models.Vod)
	}
	if s.Templates == nil {
		s.Templates = make(map[string]models.DefaultStreamTemplate)
	}
	if s.PendingThumbnails == nil {
		s.PendingThumbnails = make(map[string]models.PendingThumbnail)
	}
}

// Counts returns the SnapshotCounts summary for the snapshot.
func (s *Snapshot) Counts() SnapshotCounts {
	if s == nil {
		return SnapshotCounts{}
	}
	return SnapshotCounts{
		Sessions:          len(s.Sessions),
		Vods:              len(s.Vods),
		Templates:         len(s.Templates),
		PendingThumbnails: len(s.PendingThumbnails),
	}
}

// ImportSnapshotToPostgres hands a Snapshot to the postgresRepository so the
// serialised datastore state can be bulk-loaded into Postgres.
func ImportSnapshotToPostgres(ctx context.Context, repo Repository, snapshot *Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("snapshot is required")
	}
	pgRepo, ok := repo.(*postgresRepository)
	if !ok {
		return fmt.Errorf("postgres repository required for snapshot import")
	}
	snapshot.ensureInitialized()
	return pgRepo.importSnapshot(ctx, snapshot)
}
