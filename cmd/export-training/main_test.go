package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sensor-ingest/entities"
	"sensor-ingest/etl"
	"sensor-ingest/repositories"
	"sensor-ingest/usecases"
)

func TestParseOptions(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	opts, err := parseOptions(nil, now)
	require.NoError(t, err)
	assert.Equal(t, entities.KindAir, opts.kind)
	assert.True(t, opts.since.IsZero())
	assert.Equal(t, etl.OutliersStandard, opts.variant())
	assert.Equal(t, "-", opts.out)

	opts, err = parseOptions([]string{"--kind", "agua", "--window", "48h", "--strict", "-o", "water.csv"}, now)
	require.NoError(t, err)
	assert.Equal(t, entities.KindWater, opts.kind)
	assert.Equal(t, now.Add(-48*time.Hour), opts.since)
	assert.Equal(t, etl.OutliersStrict, opts.variant())
	assert.Equal(t, "water.csv", opts.out)

	_, err = parseOptions([]string{"--kind", "light"}, now)
	assert.Error(t, err)

	_, err = parseOptions([]string{"--window", "-1h"}, now)
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("UTC-5", -5*3600))
	var buf bytes.Buffer
	err := writeCSV(&buf, &usecases.CleanedSeries{
		Kind: entities.KindSound,
		Points: []repositories.SeriesPoint{
			{DeviceName: "mic-1", Timestamp: ts, Value: 62.5},
			{DeviceName: "mic-2", Timestamp: ts.Add(time.Minute), Value: 70},
		},
	})
	require.NoError(t, err)
	assert.Equal(t,
		"device_name,timestamp,sound\n"+
			"mic-1,2024-05-01T17:00:00Z,62.5\n"+
			"mic-2,2024-05-01T17:01:00Z,70\n",
		buf.String())
}
