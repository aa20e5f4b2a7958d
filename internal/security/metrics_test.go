package security

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestParseMetricsLabels(t *testing.T) {
	labels, err := ParseMetricsLabels("service=recall-service,region=eu-west-1")
	require.NoError(t, err)
	require.Equal(t, prometheus.Labels{"service": "recall-service", "region": "eu-west-1"}, labels)
}

func TestParseMetricsLabels_Empty(t *testing.T) {
	labels, err := ParseMetricsLabels("")
	require.NoError(t, err)
	require.Nil(t, labels)
}

func TestParseMetricsLabels_Invalid(t *testing.T) {
	_, err := ParseMetricsLabels("no-equals-sign")
	require.Error(t, err)

	_, err = ParseMetricsLabels("bad key=value")
	require.Error(t, err)
}

func TestParseMetricsLabels_EnvExpansion(t *testing.T) {
	t.Setenv("RECALL_TEST_REGION", "us-east-1")
	labels, err := ParseMetricsLabels("region=${RECALL_TEST_REGION}")
	require.NoError(t, err)
	require.Equal(t, "us-east-1", labels["region"])
}

func TestMetricHelpers_NoOpBeforeInit(t *testing.T) {
	// Helpers must be safe without InitMetrics: library embedders and most
	// package tests never register metrics.
	IncCacheHit()
	IncCacheMiss()
	IncPromotion()
	AddRecordsCreated(3)
	IncDegradedRetrieval()
}
