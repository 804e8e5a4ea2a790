package telemetry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSQLiteMetricsStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")
	store, err := OpenSQLiteMetricsStore(path)
	require.NoError(t, err)
	defer store.Close()

	today := time.Now().Format("2006-01-02")

	require.NoError(t, store.SaveKindCounts(today, map[QueryKind]int64{QueryKindTemporal: 2}))
	counts, err := store.GetKindCounts(today, today)
	require.NoError(t, err)
	require.Equal(t, int64(2), counts[QueryKindTemporal])

	require.NoError(t, store.SaveLatencyCounts(today, map[LatencyBucket]int64{BucketP50: 1}))
	lat, err := store.GetLatencyCounts(today, today)
	require.NoError(t, err)
	require.Equal(t, int64(1), lat[BucketP50])

	require.NoError(t, store.AddZeroResultQuery(QueryKindText, "clip", time.Now()))
	n, err := store.CountZeroResultQueries(today, today)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
