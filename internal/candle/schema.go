// Package candle implements the partitioned parquet candle store (C1):
// one file per (symbol, interval, date) partition, each accompanied by a
// SHA-256 sidecar checksum, written via write-temp-then-rename so a
// reader never observes a partially written file.
//
// Schema and row-group writer pattern grounded on
// NimbleMarkets-dbn-go's ParquetGroupNode_OhlcvMsg/ParquetWriteRow_OhlcvMsg
// (internal/file/parquet_writer.go), adapted from DBN market-data
// messages to this engine's signal.Candle type.
package candle

import (
	"github.com/apache/arrow-go/v18/parquet"
	pqschema "github.com/apache/arrow-go/v18/parquet/schema"
)

// groupNode returns the fixed row schema for a candle partition file:
// open_time (ns since epoch, UTC), OHLCV, quote_volume, trade_count,
// relative_volume, source.
func groupNode() *pqschema.GroupNode {
	return pqschema.MustGroup(pqschema.NewGroupNode("schema", parquet.Repetitions.Required, pqschema.FieldList{
		pqschema.MustPrimitive(pqschema.NewPrimitiveNodeLogical("open_time", parquet.Repetitions.Required, pqschema.NewTimestampLogicalType(true, pqschema.TimeUnitNanos), parquet.Types.Int64, 0, -1)),
		pqschema.NewFloat64Node("open", parquet.Repetitions.Required, -1),
		pqschema.NewFloat64Node("high", parquet.Repetitions.Required, -1),
		pqschema.NewFloat64Node("low", parquet.Repetitions.Required, -1),
		pqschema.NewFloat64Node("close", parquet.Repetitions.Required, -1),
		pqschema.NewFloat64Node("volume", parquet.Repetitions.Required, -1),
		pqschema.NewFloat64Node("quote_volume", parquet.Repetitions.Optional, -1),
		pqschema.MustPrimitive(pqschema.NewPrimitiveNodeLogical("trade_count", parquet.Repetitions.Optional, pqschema.NewIntLogicalType(64, false), parquet.Types.Int64, 0, -1)),
		pqschema.NewFloat64Node("relative_volume", parquet.Repetitions.Optional, -1),
		pqschema.MustPrimitive(pqschema.NewPrimitiveNodeConverted("source", parquet.Repetitions.Optional, parquet.Types.ByteArray, pqschema.ConvertedTypes.UTF8, 0, 0, 0, -1)),
	}, -1))
}
