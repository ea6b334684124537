package clickhouse

import "fmt"

// ArchiveTables names the tables written by the score archive.
type ArchiveTables struct {
	Samples string
	Weights string
}

func DefaultArchiveTables() ArchiveTables {
	return ArchiveTables{Samples: "score_samples", Weights: "weight_vectors"}
}

// ArchiveSchema returns the DDL for the archive tables in database db.
func ArchiveSchema(db string, t ArchiveTables) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    ts          DateTime64(3, 'UTC'),
    worker_id   LowCardinality(String),
    request_id  String,
    asset       LowCardinality(String),
    score       Float64,
    crps        Float64,
    coverage    Float64,
    scored      UInt32
) ENGINE = MergeTree
PARTITION BY toYYYYMM(ts)
ORDER BY (worker_id, ts)
TTL toDateTime(ts) + INTERVAL 90 DAY`, db, t.Samples),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    as_of       DateTime64(3, 'UTC'),
    worker_id   LowCardinality(String),
    weight      Float64
) ENGINE = MergeTree
PARTITION BY toYYYYMM(as_of)
ORDER BY (as_of, worker_id)`, db, t.Weights),
	}
}
