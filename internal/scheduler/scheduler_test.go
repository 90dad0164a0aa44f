package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBatchEndFor_FullBatch(t *testing.T) {
	// S5: blocks 1000..1099 with MAX_CONCURRENCY=10 -> batches of 10.
	assert.Equal(t, int64(1009), batchEndFor(1000, 10, 1099))
}

func TestBatchEndFor_ClampsToEndBlock(t *testing.T) {
	assert.Equal(t, int64(1099), batchEndFor(1095, 10, 1099))
}

func TestBatchEndFor_CoversFullRangeWithoutGaps(t *testing.T) {
	start, end, maxConcurrency := int64(1000), int64(1099), int64(10)
	var batches int
	for current := start; current <= end; {
		be := batchEndFor(current, maxConcurrency, end)
		batches++
		current = be + 1
	}
	assert.Equal(t, 10, batches)
}

func TestProgressStats_ZeroElapsedYieldsZeroRateAndETA(t *testing.T) {
	percent, rate, eta := progressStats(100, 50, 10, 0)
	assert.Equal(t, 50.0, percent)
	assert.Equal(t, 0.0, rate)
	assert.Equal(t, time.Duration(0), eta)
}

func TestProgressStats_ComputesWindowRateAndLinearETA(t *testing.T) {
	// 10 blocks processed in the window, over 1 second -> 10 blocks/sec.
	// 40 blocks remain out of 100 total -> ETA = 4s.
	percent, rate, eta := progressStats(100, 60, 10, time.Second)
	assert.Equal(t, 60.0, percent)
	assert.Equal(t, 10.0, rate)
	assert.Equal(t, 4*time.Second, eta)
}
