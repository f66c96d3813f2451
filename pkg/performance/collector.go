// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package performance

import (
	"context"

	"github.com/go-logr/logr"
)

// Collector is the base interface for all collectors
type Collector interface {
	Type() MetricType
	Name() string
}

// PointCollector performs one-shot data collection
type PointCollector interface {
	Collector

	// Collect performs a single collection. The returned data should
	// implement SeriesSource to be recorded into a History.
	Collect(ctx context.Context) (any, error)
}

// BaseCollector provides common functionality for all collectors
type BaseCollector struct {
	metricType MetricType
	name       string
	logger     logr.Logger
	config     CollectionConfig
}

func NewBaseCollector(metricType MetricType, name string, logger logr.Logger, config CollectionConfig) BaseCollector {
	return BaseCollector{
		metricType: metricType,
		name:       name,
		logger:     logger.WithName(string(metricType)),
		config:     config,
	}
}

func (b *BaseCollector) Type() MetricType {
	return b.metricType
}

func (b *BaseCollector) Name() string {
	return b.name
}

func (b *BaseCollector) Logger() logr.Logger {
	return b.logger
}

func (b *BaseCollector) Config() CollectionConfig {
	return b.config
}
