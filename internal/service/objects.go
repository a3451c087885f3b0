package service

import (
	"math"
	"sort"
	"strings"

	"github.com/momentsapp/moments/internal/domain"
)

// roundConfidence rounds to two decimals.
func roundConfidence(c float64) float64 {
	return math.Round(c*100) / 100
}

// normalizeObjects lower-cases labels, drops those at or below minConfidence, keeps the
// highest confidence per label, rounds, and sorts by confidence desc then name.
func normalizeObjects(objects []domain.DetectedObject, minConfidence float64) domain.DetectedObjects {
	best := make(map[string]float64, len(objects))
	for _, obj := range objects {
		name := strings.ToLower(strings.TrimSpace(obj.Name))
		if name == "" || obj.Confidence <= minConfidence {
			continue
		}
		if c, ok := best[name]; !ok || obj.Confidence > c {
			best[name] = obj.Confidence
		}
	}
	return sortedObjects(best)
}

// mergeObjects combines a previous detection result with a new one, keeping the max
// confidence per label. Labels are never dropped.
func mergeObjects(previous, current domain.DetectedObjects) domain.DetectedObjects {
	best := make(map[string]float64, len(previous)+len(current))
	for _, list := range []domain.DetectedObjects{previous, current} {
		for _, obj := range list {
			if c, ok := best[obj.Name]; !ok || obj.Confidence > c {
				best[obj.Name] = obj.Confidence
			}
		}
	}
	return sortedObjects(best)
}

func sortedObjects(best map[string]float64) domain.DetectedObjects {
	result := make(domain.DetectedObjects, 0, len(best))
	for name, c := range best {
		result = append(result, domain.DetectedObject{Name: name, Confidence: roundConfidence(c)})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Confidence != result[j].Confidence {
			return result[i].Confidence > result[j].Confidence
		}
		return result[i].Name < result[j].Name
	})
	return result
}
