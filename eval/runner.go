package eval

import (
	"errors"
	"fmt"
	"log"
	"math"
	"runtime"
	"sync"

	"github.com/vddddds/decent-clustering/datasets"
	"github.com/vddddds/decent-clustering/setpred"
)

// EvaluateDataset runs the model over the given dataset indices and scores
// each prediction set against its regenerated episode. Samples are evaluated
// concurrently by a worker pool; the only shared state is the dataset's
// read-only sensing operator, so workers never coordinate beyond the job
// channel. A sample whose evaluation fails is logged and reported as an
// all-undefined Result rather than aborting the run.
func EvaluateDataset(ds *datasets.ClusterDataset, model *setpred.Model, indices []int) ([]Result, error) {
	if ds == nil {
		return nil, errors.New("dataset is nil")
	}
	if model == nil {
		return nil, errors.New("model is nil")
	}
	if len(indices) == 0 {
		return []Result{}, nil
	}

	results := make([]Result, len(indices))

	workerCount := runtime.NumCPU()
	if workerCount > len(indices) {
		workerCount = len(indices)
	}
	jobs := make(chan int, len(indices))
	var wg sync.WaitGroup
	wg.Add(workerCount)

	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for pos := range jobs {
				res, err := evaluateOne(ds, model, indices[pos])
				if err != nil {
					log.Printf("eval: sample %d failed: %v", indices[pos], err)
					res = Result{Metrics: undefinedMetrics()}
				}
				results[pos] = res
			}
		}()
	}

	for i := range indices {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results, nil
}

func evaluateOne(ds *datasets.ClusterDataset, model *setpred.Model, idx int) (Result, error) {
	ep, measurement, err := ds.EpisodeAt(idx)
	if err != nil {
		return Result{}, fmt.Errorf("regenerate episode: %w", err)
	}
	preds, err := model.Predict(measurement)
	if err != nil {
		return Result{}, fmt.Errorf("model forward: %w", err)
	}
	return Evaluate(preds, &ep), nil
}

// Aggregate averages each metric over the results, ignoring NaN entries.
// The returned counts record how many samples defined each metric.
func Aggregate(results []Result) (means map[string]float64, counts map[string]int) {
	means = make(map[string]float64, len(MetricKeys))
	counts = make(map[string]int, len(MetricKeys))
	sums := make(map[string]float64, len(MetricKeys))
	for _, r := range results {
		for _, k := range MetricKeys {
			v, ok := r.Metrics[k]
			if !ok || math.IsNaN(v) {
				continue
			}
			sums[k] += v
			counts[k]++
		}
	}
	for _, k := range MetricKeys {
		if counts[k] > 0 {
			means[k] = sums[k] / float64(counts[k])
		} else {
			means[k] = math.NaN()
		}
	}
	return means, counts
}
