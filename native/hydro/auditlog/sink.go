// Package auditlog provides a push-based destination for hydro.Engine's
// audit trail, grounded on services/otc-gateway/recon/reconciler.go's
// writeParquet: a struct-tagged parquet row written through a
// lumberjack-rotated file instead of a one-shot report file, since Hydro's
// audit log is a continuous append stream rather than a periodic export.
package auditlog

import (
	"fmt"
	"sync"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"gopkg.in/natefinch/lumberjack.v2"

	"hydro/native/hydro"
)

// parquetRow mirrors reconciler.go's parquetRow idiom: flat, all
// BYTE_ARRAY/INT64 fields, one column per AuditRecord field.
type parquetRow struct {
	RecordID   string `parquet:"name=record_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Seq        int64  `parquet:"name=seq, type=INT64"`
	Action     string `parquet:"name=action, type=BYTE_ARRAY, convertedtype=UTF8"`
	Actor      string `parquet:"name=actor, type=BYTE_ARRAY, convertedtype=UTF8"`
	RoundID    int64  `parquet:"name=round_id, type=INT64"`
	TrancheID  int64  `parquet:"name=tranche_id, type=INT64"`
	ProposalID int64  `parquet:"name=proposal_id, type=INT64"`
	LockID     int64  `parquet:"name=lock_id, type=INT64"`
	Detail     string `parquet:"name=detail, type=BYTE_ARRAY, convertedtype=UTF8"`
	AtNanos    int64  `parquet:"name=at_nanos, type=INT64"`
}

// ParquetSink appends audit records as parquet rows to a lumberjack-rotated
// file. It implements hydro.AuditSink.
type ParquetSink struct {
	mu     sync.Mutex
	file   *lumberjack.Logger
	writer *writer.ParquetWriter
}

// NewParquetSink opens a rotated parquet audit log at path, following
// lumberjack.Logger's own MaxSize(MB)/MaxBackups/MaxAge(days) rotation
// semantics.
func NewParquetSink(path string, maxSizeMB, maxBackups, maxAgeDays int) (*ParquetSink, error) {
	logger := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	fw := writerfile.NewWriterFile(logger)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		return nil, fmt.Errorf("auditlog: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	return &ParquetSink{file: logger, writer: pw}, nil
}

// Write appends rec as one parquet row.
func (s *ParquetSink) Write(rec hydro.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := &parquetRow{
		RecordID:   rec.RecordID,
		Seq:        int64(rec.Seq),
		Action:     rec.Action,
		Actor:      rec.Actor,
		RoundID:    int64(rec.RoundID),
		TrancheID:  int64(rec.TrancheID),
		ProposalID: int64(rec.ProposalID),
		LockID:     int64(rec.LockID),
		Detail:     rec.Detail,
		AtNanos:    rec.AtNanos,
	}
	if err := s.writer.Write(row); err != nil {
		return fmt.Errorf("auditlog: write row: %w", err)
	}
	return nil
}

// Close flushes any buffered rows and closes the underlying rotated file.
func (s *ParquetSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.WriteStop(); err != nil {
		return fmt.Errorf("auditlog: flush: %w", err)
	}
	return s.file.Close()
}

var _ hydro.AuditSink = (*ParquetSink)(nil)
