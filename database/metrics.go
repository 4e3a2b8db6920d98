// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"context"
	"errors"
	"iter"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blinklabs-io/stokvel/database/plugin/blob"
	"github.com/blinklabs-io/stokvel/database/plugin/entity"
	"github.com/blinklabs-io/stokvel/database/types"
)

const storeMetricNamePrefix = "database_"

type storeMetrics struct {
	entityOps *prometheus.CounterVec
	blobOps   *prometheus.CounterVec
	blobBytes prometheus.Counter
}

func newStoreMetrics(promRegistry prometheus.Registerer) *storeMetrics {
	m := &storeMetrics{
		entityOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: storeMetricNamePrefix + "entity_ops_total",
				Help: "Entity store operations by operation and result",
			},
			[]string{"op", "result"},
		),
		blobOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: storeMetricNamePrefix + "blob_ops_total",
				Help: "Blob store operations by operation and result",
			},
			[]string{"op", "result"},
		),
		blobBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: storeMetricNamePrefix + "blob_bytes_total",
				Help: "Total bytes read/written for blob operations",
			},
		),
	}
	promRegistry.MustRegister(m.entityOps, m.blobOps, m.blobBytes)
	return m
}

// resultLabel buckets an error into a small fixed set of label values
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrNotFound), errors.Is(err, types.ErrBlobKeyNotFound):
		return "not_found"
	case errors.Is(err, types.ErrAlreadyExists):
		return "exists"
	case errors.Is(err, types.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

type instrumentedEntityStore struct {
	entity.EntityStore
	metrics *storeMetrics
}

func newInstrumentedEntityStore(
	store entity.EntityStore,
	metrics *storeMetrics,
) entity.EntityStore {
	if metrics == nil {
		return store
	}
	return &instrumentedEntityStore{EntityStore: store, metrics: metrics}
}

func (s *instrumentedEntityStore) observe(op string, err error) {
	s.metrics.entityOps.WithLabelValues(op, resultLabel(err)).Inc()
}

func (s *instrumentedEntityStore) Get(ctx context.Context, key types.Key) (*types.Record, error) {
	rec, err := s.EntityStore.Get(ctx, key)
	s.observe("get", err)
	return rec, err
}

func (s *instrumentedEntityStore) Create(ctx context.Context, rec *types.Record) (string, error) {
	token, err := s.EntityStore.Create(ctx, rec)
	s.observe("create", err)
	return token, err
}

func (s *instrumentedEntityStore) Put(
	ctx context.Context,
	rec *types.Record,
	expectedToken string,
) (string, error) {
	token, err := s.EntityStore.Put(ctx, rec, expectedToken)
	s.observe("put", err)
	return token, err
}

func (s *instrumentedEntityStore) List(
	ctx context.Context,
	table string,
	partition string,
) iter.Seq2[*types.Record, error] {
	return func(yield func(*types.Record, error) bool) {
		var listErr error
		defer func() { s.observe("list", listErr) }()
		for rec, err := range s.EntityStore.List(ctx, table, partition) {
			if err != nil {
				listErr = err
			}
			if !yield(rec, err) {
				return
			}
		}
	}
}

type instrumentedBlobStore struct {
	blob.BlobStore
	metrics *storeMetrics
}

func newInstrumentedBlobStore(
	store blob.BlobStore,
	metrics *storeMetrics,
) blob.BlobStore {
	if metrics == nil {
		return store
	}
	return &instrumentedBlobStore{BlobStore: store, metrics: metrics}
}

func (s *instrumentedBlobStore) Put(
	ctx context.Context,
	key string,
	data []byte,
	contentType string,
) (string, error) {
	ref, err := s.BlobStore.Put(ctx, key, data, contentType)
	s.metrics.blobOps.WithLabelValues("put", resultLabel(err)).Inc()
	if err == nil {
		s.metrics.blobBytes.Add(float64(len(data)))
	}
	return ref, err
}

func (s *instrumentedBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.BlobStore.Get(ctx, key)
	s.metrics.blobOps.WithLabelValues("get", resultLabel(err)).Inc()
	if err == nil {
		s.metrics.blobBytes.Add(float64(len(data)))
	}
	return data, err
}
