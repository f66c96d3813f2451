// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package performance

import (
	"fmt"
	"slices"

	"github.com/go-logr/logr"
)

// NewPointCollector creates a collector instance from a logger and configuration
type NewPointCollector func(logger logr.Logger, config CollectionConfig) (PointCollector, error)

var registry = make(map[MetricType]NewPointCollector)

// Register adds a NewPointCollector factory to the global registry for metricType.
//
// This function is usually called during package initialization (typically in init() functions)
// to register collector implementations before they can be instantiated by performance.Manager.
//
// It will panic if a collector for the given metricType is already registered
func Register(metricType MetricType, collector NewPointCollector) {
	_, exists := registry[metricType]
	if exists {
		panic(fmt.Sprintf("Collector for %s already registered", metricType))
	}
	registry[metricType] = collector
}

// GetCollector retrieves the collector factory function from the global registry for metricType.
func GetCollector(metricType MetricType) (NewPointCollector, error) {
	collector, exists := registry[metricType]
	if !exists {
		return nil, fmt.Errorf("Collector for %s not found", metricType)
	}
	return collector, nil
}

// RegisteredTypes returns the metric types with a registered factory, sorted.
func RegisteredTypes() []MetricType {
	types := make([]MetricType, 0, len(registry))
	for metricType := range registry {
		types = append(types, metricType)
	}
	slices.Sort(types)
	return types
}
