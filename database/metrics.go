/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StatementAttempts counts driver attempts by bind and outcome class;
	// successful attempts use the class "ok".
	StatementAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_statement_attempts_total",
			Help: "Total number of statement attempts sent to a driver",
		},
		[]string{"bind", "class"},
	)
	// StatementRetries counts delays taken before a repeated attempt.
	StatementRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_statement_retries_total",
			Help: "Total number of statement retries after a transient failure",
		},
		[]string{"bind"},
	)
	StatementDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quarry_statement_duration_seconds",
			Help:    "Statement latency including retries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"bind", "operation"},
	)
	// SchemaCacheLookups counts schema cache lookups by result (hit, miss).
	SchemaCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_schema_cache_lookups_total",
			Help: "Total number of schema cache lookups",
		},
		[]string{"result"},
	)
	// PaginatedQueries counts paginated reads by pagination mode.
	PaginatedQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quarry_paginated_queries_total",
			Help: "Total number of paginated reads",
		},
		[]string{"mode"},
	)
)
