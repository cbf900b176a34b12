package auditlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"hydro/native/hydro"
)

func TestParquetSinkWritesRowsAndCloses(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.parquet")
	sink, err := NewParquetSink(path, 1, 1, 1)
	require.NoError(t, err)

	require.NoError(t, sink.Write(hydro.AuditRecord{
		RecordID: "r1", Seq: 1, Action: "lock", Actor: "alice",
		RoundID: 0, TrancheID: 1, ProposalID: 0, LockID: 7,
		Detail: "100 D", AtNanos: 1000,
	}))
	require.NoError(t, sink.Write(hydro.AuditRecord{
		RecordID: "r2", Seq: 2, Action: "vote", Actor: "alice",
		RoundID: 0, TrancheID: 1, ProposalID: 3, LockID: 7,
		Detail: "1 proposals", AtNanos: 2000,
	}))
	require.NoError(t, sink.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}
