package store

import (
	"context"
	"errors"

	"tariffsim/internal/model"
)

// ErrNotFound is returned when nothing has been ingested yet.
var ErrNotFound = errors.New("store: not found")

type Store interface {
	UpsertTradeRecords(ctx context.Context, records []model.TradeRecord) error
	ListTradeRecords(ctx context.Context) ([]model.TradeRecord, error)
	UpsertHistory(ctx context.Context, points []model.HistoryPoint) error
	ListHistory(ctx context.Context, provider string) ([]model.HistoryPoint, error)
	ListHistoryYears(ctx context.Context, provider, iso3, partner string) ([]int, error)
	Close() error
}

type NopStore struct{}

func (s *NopStore) UpsertTradeRecords(ctx context.Context, records []model.TradeRecord) error {
	_ = ctx
	_ = records
	return nil
}

func (s *NopStore) ListTradeRecords(ctx context.Context) ([]model.TradeRecord, error) {
	_ = ctx
	return nil, ErrNotFound
}

func (s *NopStore) UpsertHistory(ctx context.Context, points []model.HistoryPoint) error {
	_ = ctx
	_ = points
	return nil
}

func (s *NopStore) ListHistory(ctx context.Context, provider string) ([]model.HistoryPoint, error) {
	_ = ctx
	_ = provider
	return nil, nil
}

func (s *NopStore) ListHistoryYears(ctx context.Context, provider, iso3, partner string) ([]int, error) {
	_ = ctx
	_ = provider
	_ = iso3
	_ = partner
	return nil, nil
}

func (s *NopStore) Close() error {
	return nil
}
