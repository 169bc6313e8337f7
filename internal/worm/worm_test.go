package worm

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteSnapshot_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	result, err := store.WriteSnapshot(map[string]interface{}{"symbol": "BTCUSDT"}, map[string]interface{}{"kind": "recommendation"})
	require.NoError(t, err)
	require.NotEmpty(t, result.UUID)
	require.NotEmpty(t, result.FileHash)
	require.FileExists(t, result.Path)

	doc, status, err := store.ReadSnapshot(result.Path)
	require.NoError(t, err)
	require.Equal(t, VerifyMatch, status)
	require.Equal(t, result.UUID, doc.UUID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(doc.Payload, &payload))
	require.Equal(t, "BTCUSDT", payload["symbol"])
	require.Equal(t, result.FileHash, doc.Metadata["file_hash"])
}

func TestReadSnapshot_DetectsTamperedPayload(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	result, err := store.WriteSnapshot(map[string]interface{}{"symbol": "BTCUSDT"}, nil)
	require.NoError(t, err)

	raw, err := os.ReadFile(result.Path)
	require.NoError(t, err)
	tampered := []byte(strings.Replace(string(raw), "BTCUSDT", "BTCUSDX", 1))
	require.NoError(t, os.WriteFile(result.Path, tampered, 0o644))

	_, status, err := store.ReadSnapshot(result.Path)
	require.NoError(t, err)
	require.Equal(t, VerifyMismatch, status)
}

func TestReadSnapshot_AbsentHashReportsZero(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	path := dir + "/no-hash.json"
	raw, err := json.Marshal(Snapshot{UUID: "x", Payload: json.RawMessage(`{}`), Metadata: map[string]interface{}{}})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, status, err := store.ReadSnapshot(path)
	require.NoError(t, err)
	require.Equal(t, VerifyAbsent, status)
}

func TestWriteSnapshot_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	result, err := store.WriteSnapshot(map[string]string{"a": "1"}, nil)
	require.NoError(t, err)

	// Attempting to recreate the exact same path must fail (O_EXCL).
	f, err := os.OpenFile(result.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	require.Error(t, err)
	if f != nil {
		f.Close()
	}
}

func TestWriteSnapshot_DistinctUUIDsEvenSameSecond(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)

	r1, err := store.WriteSnapshot(map[string]string{"a": "1"}, nil)
	require.NoError(t, err)
	r2, err := store.WriteSnapshot(map[string]string{"a": "2"}, nil)
	require.NoError(t, err)

	require.NotEqual(t, r1.UUID, r2.UUID)
	require.NotEqual(t, r1.Path, r2.Path)
}
