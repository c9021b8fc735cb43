package sstable

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/hupe1980/lsmkv/memtable"
)

// Segments are stored as Parquet files with three columns: key, value and
// tombstone. Rows are written in key order, so a loaded segment is sorted
// without re-sorting.
func segmentSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "key", Type: arrow.BinaryTypes.String},
		{Name: "value", Type: arrow.BinaryTypes.String},
		{Name: "tombstone", Type: arrow.FixedWidthTypes.Boolean},
	}, nil)
}

// writeSegment serializes entries to w in the columnar segment layout.
func writeSegment(w io.Writer, entries []memtable.Entry) error {
	alloc := memory.NewGoAllocator()
	schema := segmentSchema()

	builder := array.NewRecordBuilder(alloc, schema)
	defer builder.Release()

	keyBuilder := builder.Field(0).(*array.StringBuilder)
	valueBuilder := builder.Field(1).(*array.StringBuilder)
	tombstoneBuilder := builder.Field(2).(*array.BooleanBuilder)

	for _, e := range entries {
		keyBuilder.Append(e.Key)
		valueBuilder.Append(e.Value)
		tombstoneBuilder.Append(e.Tombstone)
	}

	keyArr := keyBuilder.NewArray()
	defer keyArr.Release()
	valueArr := valueBuilder.NewArray()
	defer valueArr.Release()
	tombstoneArr := tombstoneBuilder.NewArray()
	defer tombstoneArr.Release()

	record := array.NewRecord(schema, []arrow.Array{keyArr, valueArr, tombstoneArr}, int64(len(entries)))
	defer record.Release()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Zstd))

	writer, err := pqarrow.NewFileWriter(schema, w, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("sstable: failed to create segment writer: %w", err)
	}

	if err := writer.Write(record); err != nil {
		_ = writer.Close()
		return fmt.Errorf("sstable: failed to write segment rows: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("sstable: failed to finalize segment: %w", err)
	}

	return nil
}

// readSegment deserializes a full segment from r.
func readSegment(ctx context.Context, r parquet.ReaderAtSeeker) ([]memtable.Entry, error) {
	reader, err := file.NewParquetReader(r)
	if err != nil {
		return nil, fmt.Errorf("sstable: failed to open segment: %w", err)
	}
	defer reader.Close()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{}, memory.NewGoAllocator())
	if err != nil {
		return nil, fmt.Errorf("sstable: failed to create segment reader: %w", err)
	}

	table, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return nil, fmt.Errorf("sstable: failed to read segment rows: %w", err)
	}
	defer table.Release()

	if table.NumCols() != 3 {
		return nil, fmt.Errorf("sstable: unexpected column count %d", table.NumCols())
	}

	entries := make([]memtable.Entry, 0, table.NumRows())

	keyChunks := table.Column(0).Data().Chunks()
	valueChunks := table.Column(1).Data().Chunks()
	tombstoneChunks := table.Column(2).Data().Chunks()

	for c := range keyChunks {
		keys, ok := keyChunks[c].(*array.String)
		if !ok {
			return nil, fmt.Errorf("sstable: unexpected key column type %T", keyChunks[c])
		}
		values, ok := valueChunks[c].(*array.String)
		if !ok {
			return nil, fmt.Errorf("sstable: unexpected value column type %T", valueChunks[c])
		}
		tombstones, ok := tombstoneChunks[c].(*array.Boolean)
		if !ok {
			return nil, fmt.Errorf("sstable: unexpected tombstone column type %T", tombstoneChunks[c])
		}

		for i := 0; i < keys.Len(); i++ {
			entries = append(entries, memtable.Entry{
				Key:       keys.Value(i),
				Value:     values.Value(i),
				Tombstone: tombstones.Value(i),
			})
		}
	}

	return entries, nil
}
