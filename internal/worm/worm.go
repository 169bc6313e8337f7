// Package worm implements the write-once-read-many snapshot store (C13).
// The orchestrator persists each published recommendation here
// immutably, keyed by date and a random UUID, with a self-verifying
// SHA-256 file hash embedded in the document itself.
//
// Ported from the original implementation's WormRepository
// (backend/app/utils/worm_storage.py): two-pass write (serialize with an
// empty file_hash, write, hash the bytes, rewrite with the hash
// populated). The stored hash is therefore the SHA-256 of the document
// serialized with file_hash empty, which ReadSnapshot recomputes; it is
// not a hash of the final bytes on disk.
package worm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Snapshot is the immutable document written to disk.
type Snapshot struct {
	UUID      string                 `json:"uuid"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   json.RawMessage        `json:"payload"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// WriteResult describes a completed write.
type WriteResult struct {
	UUID      string
	Path      string
	FileHash  string
	Date      string
	Timestamp time.Time
}

// VerifyStatus is the outcome of recomputing a snapshot's hash on read:
// 1 the recomputed hash matches metadata.file_hash, 0 the snapshot
// carries no file_hash to check against, -1 the hashes disagree.
type VerifyStatus int

const (
	VerifyMismatch VerifyStatus = -1
	VerifyAbsent   VerifyStatus = 0
	VerifyMatch    VerifyStatus = 1
)

// Store writes and reads WORM snapshots rooted at BaseDir.
type Store struct {
	BaseDir string
}

// NewStore creates a Store rooted at baseDir, creating it if absent.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create worm base dir: %w", err)
	}
	return &Store{BaseDir: baseDir}, nil
}

// WriteSnapshot serializes payload under a fresh UUID inside a
// date-partitioned subdirectory, using O_EXCL so no snapshot is ever
// overwritten, then rewrites the document once with metadata.file_hash
// populated from the SHA-256 of the first-pass bytes.
func (s *Store) WriteSnapshot(payload interface{}, metadata map[string]interface{}) (WriteResult, error) {
	ts := time.Now().UTC()
	dateStr := ts.Format("2006-01-02")
	id := uuid.New().String()
	filename := fmt.Sprintf("%s-%s.json", dateStr, id)

	dateDir := filepath.Join(s.BaseDir, dateStr)
	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return WriteResult{}, fmt.Errorf("create date dir: %w", err)
	}
	path := filepath.Join(dateDir, filename)

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return WriteResult{}, fmt.Errorf("marshal payload: %w", err)
	}
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["file_hash"] = ""

	doc := Snapshot{UUID: id, Timestamp: ts, Payload: rawPayload, Metadata: metadata}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return WriteResult{}, fmt.Errorf("open snapshot for exclusive write: %w", err)
	}

	firstPass, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		f.Close()
		return WriteResult{}, fmt.Errorf("marshal snapshot: %w", err)
	}
	if _, err := f.Write(firstPass); err != nil {
		f.Close()
		return WriteResult{}, fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return WriteResult{}, fmt.Errorf("close snapshot: %w", err)
	}

	sum := sha256.Sum256(firstPass)
	fileHash := hex.EncodeToString(sum[:])
	doc.Metadata["file_hash"] = fileHash

	finalBytes, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return WriteResult{}, fmt.Errorf("marshal final snapshot: %w", err)
	}
	if err := os.WriteFile(path, finalBytes, 0o644); err != nil {
		return WriteResult{}, fmt.Errorf("rewrite snapshot with hash: %w", err)
	}

	log.Info().Str("uuid", id).Str("path", path).Str("hash", fileHash).Msg("snapshot written to worm storage")

	return WriteResult{UUID: id, Path: path, FileHash: fileHash, Date: dateStr, Timestamp: ts}, nil
}

// ReadSnapshot loads a snapshot by path and recomputes SHA-256 over the
// document with metadata.file_hash blanked out — the same construction
// WriteSnapshot hashed before populating it — comparing the result
// against the stored hash. VerifyMatch (1) means the bytes on disk are
// exactly what was written; VerifyMismatch (-1) means they were altered
// or truncated since; VerifyAbsent (0) means there was no hash to check
// (e.g. a snapshot written before this field existed).
func (s *Store) ReadSnapshot(path string) (*Snapshot, VerifyStatus, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, VerifyAbsent, fmt.Errorf("read snapshot %s: %w", path, err)
	}

	var doc Snapshot
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, VerifyAbsent, fmt.Errorf("decode snapshot %s: %w", path, err)
	}

	stored, ok := doc.Metadata["file_hash"].(string)
	if !ok || stored == "" {
		log.Warn().Str("path", path).Msg("snapshot missing file_hash")
		return &doc, VerifyAbsent, nil
	}

	unhashed := make(map[string]interface{}, len(doc.Metadata))
	for k, v := range doc.Metadata {
		unhashed[k] = v
	}
	unhashed["file_hash"] = ""
	verifyDoc := Snapshot{UUID: doc.UUID, Timestamp: doc.Timestamp, Payload: doc.Payload, Metadata: unhashed}

	verifyBytes, err := json.MarshalIndent(verifyDoc, "", "  ")
	if err != nil {
		return nil, VerifyAbsent, fmt.Errorf("re-marshal snapshot %s for verification: %w", path, err)
	}
	sum := sha256.Sum256(verifyBytes)
	calculated := hex.EncodeToString(sum[:])

	if calculated != stored {
		log.Warn().Str("path", path).Str("stored", stored).Str("calculated", calculated).
			Msg("snapshot file_hash mismatch")
		return &doc, VerifyMismatch, nil
	}
	return &doc, VerifyMatch, nil
}

// FindByUUID scans date subdirectories under BaseDir for a snapshot
// whose filename embeds the given UUID.
func (s *Store) FindByUUID(id string) (string, error) {
	var found string
	err := filepath.Walk(s.BaseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Ext(path) == ".json" && filepath.Base(path) == fmt.Sprintf("%s-%s.json", filepath.Base(filepath.Dir(path)), id) {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return found, nil
}
