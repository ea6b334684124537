package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"FinSynth/internal/domain/models"
	pkgch "FinSynth/pkg/clickhouse"
)

const archiveChunkSize = 2000

// ClickHouseScoreArchive appends score samples and published weight vectors.
type ClickHouseScoreArchive struct {
	db     *sql.DB
	tables pkgch.ArchiveTables
}

func NewClickHouseScoreArchive(db *sql.DB, tables pkgch.ArchiveTables) *ClickHouseScoreArchive {
	return &ClickHouseScoreArchive{db: db, tables: tables}
}

func (a *ClickHouseScoreArchive) SaveSamples(ctx context.Context, samples []models.ScoreSample) error {
	for start := 0; start < len(samples); start += archiveChunkSize {
		end := min(start+archiveChunkSize, len(samples))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, s := range samples[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, s.Timestamp.UTC(), s.WorkerID, s.RequestID, s.Asset, s.Score, s.CRPS, s.Coverage, uint32(s.Scored))
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, worker_id, request_id, asset, score, crps, coverage, scored) VALUES %s",
			a.tables.Samples, strings.Join(values, ","))
		if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("archive samples: %w", err)
		}
	}
	return nil
}

func (a *ClickHouseScoreArchive) SaveWeights(ctx context.Context, v models.WeightVector) error {
	if v.Empty() {
		return nil
	}
	ids := make([]string, 0, len(v.Weights))
	for id := range v.Weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	values := make([]string, 0, len(ids))
	args := make([]interface{}, 0, len(ids)*3)
	for _, id := range ids {
		values = append(values, "(?, ?, ?)")
		args = append(args, v.AsOf.UTC(), id, v.Weights[id])
	}
	q := fmt.Sprintf("INSERT INTO %s (as_of, worker_id, weight) VALUES %s", a.tables.Weights, strings.Join(values, ","))
	if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("archive weights: %w", err)
	}
	return nil
}
