package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillmind/skillmind/internal/telemetry"
)

func TestListResources_EmptyUntilMetricsSet(t *testing.T) {
	s := newTestServer(t)

	resources, _, err := s.ListResources(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, resources)

	s.SetMetrics(telemetry.NewQueryMetrics(nil))
	resources, _, err = s.ListResources(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, resources, 1)
	assert.Equal(t, queryMetricsURI, resources[0].URI)
}

func TestReadResource_UnknownURIReturnsNotFound(t *testing.T) {
	s := newTestServer(t)
	_, err := s.ReadResource(context.Background(), "skillmind://does-not-exist")
	assert.Error(t, err)
}

func TestReadResource_QueryMetricsReturnsJSON(t *testing.T) {
	s := newTestServer(t)
	metrics := telemetry.NewQueryMetrics(nil)
	metrics.Record(telemetry.QueryEvent{
		Query:       "react testing pattern",
		QueryType:   telemetry.QueryTypeSemantic,
		ResultCount: 3,
		Latency:     10 * time.Millisecond,
		Timestamp:   time.Now(),
	})
	s.SetMetrics(metrics)

	content, err := s.ReadResource(context.Background(), queryMetricsURI)
	require.NoError(t, err)
	assert.Equal(t, "application/json", content.MIMEType)
	assert.Contains(t, content.Content, "total_queries")
}
