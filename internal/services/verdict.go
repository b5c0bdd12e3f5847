package services

import (
	"math"

	"codearena/internal/models"
)

// failurePriority is the order in which failing statuses dominate the
// overall verdict. A single compilation error outweighs any number of
// later runtime symptoms because it is the more useful diagnosis.
var failurePriority = []string{
	models.StatusCompilationError,
	models.StatusRuntimeError,
	models.StatusMemoryLimitExceeded,
	models.StatusTimeLimitExceeded,
}

// Aggregate reduces a full outcome list into one verdict. Averages run
// over every case, passed or not; failing cases consume resources too.
func Aggregate(outcomes []models.ExecutionOutcome) models.Verdict {
	v := models.Verdict{TotalCount: len(outcomes)}
	if len(outcomes) == 0 {
		return v
	}

	var runtimeSum, memorySum int
	seen := make(map[string]bool)

	for _, o := range outcomes {
		if o.Passed {
			v.PassedCount++
		}
		runtimeSum += o.RuntimeMs
		memorySum += o.MemoryMb
		seen[o.Status] = true
	}

	v.AvgRuntimeMs = int(math.Round(float64(runtimeSum) / float64(len(outcomes))))
	v.AvgMemoryMb = int(math.Round(float64(memorySum) / float64(len(outcomes))))

	if v.PassedCount == v.TotalCount {
		v.OverallStatus = models.StatusAccepted
		return v
	}

	for _, status := range failurePriority {
		if seen[status] {
			v.OverallStatus = status
			return v
		}
	}

	v.OverallStatus = models.StatusWrongAnswer
	return v
}
