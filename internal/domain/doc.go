// Package domain models weather-station observations and the transforms that
// turn heterogeneous source exports into one canonical record list.
//
// # Sources
//
// Three export styles feed the pipeline:
//
//	Spreadsheet workbooks: one sheet per day, named DDMMYY ("010124" is
//	1 January 2024). Each row carries a "Time" cell ("06:00", "6:00 AM" or an
//	Excel day fraction) that is merged with the sheet date into timestamp.
//
//	Columnar exports: per-station parquet directories written by an ingestion
//	connector. Columns are often wrapped one level deep ({"string": "53.1 °F"})
//	and carry connector bookkeeping columns prefixed "_airbyte".
//
//	Aggregate payloads: one JSON document per fetch, with a "stations" list
//	and an "hourly" block mapping each station id to time-aligned arrays:
//
//	  "hourly": {"07015": {"time": [t0, t1], "temperature": [4.1, 4.3]}}
//
// # Canonical Records
//
// A [Record] is an ordered field table. Every serialized record carries
// station_id, station_name, latitude, longitude, elevation and timestamp,
// null when unknown. Values are a closed union ([Value]): null, text,
// number, instant or an unflattened nested structure.
//
// # Conventions
//
// Units are stripped from numeric text by taking the first decimal
// substring: "53.1 °F" becomes 53.1, "N/A" becomes null. Sources that write
// decimal commas ("12,5") are normalized per source profile.
//
// Timestamps are rendered in UTC without a zone suffix, e.g.
// "2024-01-01T06:00:00".
package domain
