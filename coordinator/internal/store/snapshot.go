package store

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/pairfs/coordinator/internal/config"
)

const snapshotFormatVersion = 1

// snapshotDocument is the serialized form shared by all backends.
type snapshotDocument struct {
	Version       int       `json:"version"`
	CoordinatorID string    `json:"coordinatorId"`
	SavedAt       time.Time `json:"savedAt"`
	Blobs         Snapshot  `json:"blobs"`
}

func encodeSnapshot(coordinatorID string, snap Snapshot) ([]byte, error) {
	if snap == nil {
		snap = Snapshot{}
	}
	data, err := json.Marshal(snapshotDocument{
		Version:       snapshotFormatVersion,
		CoordinatorID: coordinatorID,
		SavedAt:       time.Now().UTC(),
		Blobs:         snap,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	if len(data) == 0 {
		return Snapshot{}, nil
	}
	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if doc.Version > snapshotFormatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", doc.Version)
	}
	if doc.Blobs == nil {
		doc.Blobs = Snapshot{}
	}
	return doc.Blobs, nil
}

// NewSnapshotStore opens the snapshot backend selected in cfg. Every backend
// keys its single artifact by coordinatorID.
func NewSnapshotStore(cfg config.SnapshotConfig, coordinatorID string, logger *zap.Logger) (SnapshotStore, error) {
	switch cfg.Backend {
	case config.BackendFile, "":
		return NewFileSnapshotStore(cfg.Path, coordinatorID), nil
	case config.BackendBolt:
		return NewBoltSnapshotStore(cfg.BoltPath, coordinatorID)
	case config.BackendBadger:
		return NewBadgerSnapshotStore(cfg.BadgerDir, coordinatorID, logger)
	case config.BackendPostgres:
		pg := cfg.Postgres
		return NewPostgresSnapshotStore(pg.Host, pg.Port, pg.Database, pg.User, pg.Password,
			pg.MaxConnections, pg.MinConnections, pg.ConnMaxLifetime, coordinatorID, logger)
	case config.BackendRedis:
		r := cfg.Redis
		return NewRedisSnapshotStore(r.Host, r.Port, r.Password, r.DB, r.MaxRetries, r.PoolSize, coordinatorID, logger)
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
	}
}
