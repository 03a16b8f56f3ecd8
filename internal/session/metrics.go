package session

import (
	"math"
	"strings"
)

// CalculateMetrics computes aggregate metrics over the full accumulated
// result set. Only finalized results contribute. An empty final set yields
// exactly zero metrics, including accuracy; defaultAccuracy applies only
// when finals exist but none of them carry a confidence score.
func CalculateMetrics(results []TranscriptionResult, defaultAccuracy float64) TranscriptionMetrics {
	var (
		latencySum   float64
		latencyCount int
		confSum      float64
		confCount    int
		wordCount    int
		finalCount   int
	)

	for _, r := range results {
		if !r.IsFinal {
			continue
		}
		finalCount++

		if r.HasLatency && r.LatencyMs > 0 {
			latencySum += r.LatencyMs
			latencyCount++
		}
		if r.HasConfidence {
			confSum += r.Confidence
			confCount++
		}
		wordCount += len(strings.Fields(r.Text))
	}

	if finalCount == 0 {
		return TranscriptionMetrics{}
	}

	metrics := TranscriptionMetrics{WordCount: wordCount}

	if latencyCount > 0 {
		metrics.LatencyMs = int(math.Round(latencySum / float64(latencyCount)))
	}

	if confCount > 0 {
		metrics.Accuracy = math.Round(confSum/float64(confCount)*100*10) / 10
	} else {
		metrics.Accuracy = defaultAccuracy
	}

	return metrics
}
