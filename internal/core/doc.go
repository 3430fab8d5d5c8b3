// Package core provides the business logic for equipment dataset analytics.
//
// This package holds all domain logic independent of any transport. It is
// used by the HTTP server, the equipstat CLI and tests without modification.
//
// # Pipeline
//
// An uploaded CSV goes through four pure steps:
//
//  1. [DecodeCSV] turns bytes into a [RawTable] (BOM stripped, first
//     non-empty row is the header, empty cells are missing).
//  2. [ResolveColumns] maps the five canonical fields onto source labels
//     through an [AliasTable], comparing labels after [NormalizeLabel].
//  3. [CoerceRow] produces a [NormalizedRow] per source row. Numeric cells
//     that do not parse become missing rather than failing the upload.
//  4. [Summarize] computes the row count, per-metric means over present
//     values and the type distribution.
//
// [Ingest] runs steps 2 to 4; [IngestCSV] runs all four.
//
// # Retention
//
// Each owner keeps at most [DefaultRetentionCap] datasets. Ordering is by
// upload time, newest first, ties broken by higher ID. [SelectEvictions]
// picks the surplus; a [DatasetStore] applies it atomically with the insert.
// Raw bytes live in a [BlobStore]; releases that fail are recorded and
// retried by [Service.StartOrphanSweeper].
//
// # Error Handling
//
// Validation failures ([SchemaValidationError], [EmptyTableError],
// [DecodeError]) carry the message shown to the uploader. Other errors are
// mapped to coded user messages by [MapError].
package core
