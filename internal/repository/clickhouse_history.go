package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"OracleFeed/internal/domain/models"
	domrepo "OracleFeed/internal/domain/repository"
	pkgch "OracleFeed/pkg/clickhouse"
)

// CHHistorySink implements HistorySink backed by ClickHouse. It is strictly
// an export target: nothing in the serve path reads these rows, and a process
// restart cold-starts from live sources.
type CHHistorySink struct {
	client *pkgch.Client
	table  string
}

// NewCHHistorySink creates a ClickHouse-backed history sink.
func NewCHHistorySink(client *pkgch.Client, table string) domrepo.HistorySink {
	if table == "" {
		table = "oraclefeed.consensus_prices"
	}
	return &CHHistorySink{client: client, table: table}
}

// Init ensures the database and table exist (idempotent).
func (s *CHHistorySink) Init(ctx context.Context) error {
	stmts := []string{
		"CREATE DATABASE IF NOT EXISTS oraclefeed",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ts DateTime64(3),
			symbol LowCardinality(String),
			price Float64,
			confidence Float64,
			consensus_score Float64,
			sources Array(String)
		) ENGINE = MergeTree ORDER BY (symbol, ts)`, s.table),
	}
	return s.client.InitSchema(ctx, stmts)
}

func (s *CHHistorySink) Store(ctx context.Context, a *models.AggregatedPrice) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, confidence, consensus_score, sources) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	_, err := s.client.DB().ExecContext(ctx, q,
		time.UnixMilli(a.Timestamp),
		a.Symbol,
		a.Price,
		a.Confidence,
		a.ConsensusScore,
		a.Sources,
	)
	return err
}

func (s *CHHistorySink) StoreBatch(ctx context.Context, prices []*models.AggregatedPrice) error {
	if len(prices) == 0 {
		return nil
	}
	// Multi-row VALUES to reduce round-trips, chunked.
	const chunkSize = 2000
	for start := 0; start < len(prices); start += chunkSize {
		end := start + chunkSize
		if end > len(prices) {
			end = len(prices)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, a := range prices[start:end] {
			if a == nil || a.Symbol == "" {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args,
				time.UnixMilli(a.Timestamp),
				a.Symbol,
				a.Price,
				a.Confidence,
				a.ConsensusScore,
				a.Sources,
			)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, confidence, consensus_score, sources) VALUES %s",
			s.table, strings.Join(values, ","))
		if _, err := s.client.DB().ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *CHHistorySink) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

func (s *CHHistorySink) Close() error {
	return nil // connection pool owned by pkg client
}
