package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vddddds/decent-clustering/datasets"
	"github.com/vddddds/decent-clustering/eval"
	"github.com/vddddds/decent-clustering/setpred"
)

// defaultConfigJSON is the embedded JSON written to cmd/estimate/data.json
// when the user did not provide a -config path, so the default configuration
// is available on disk. Explicit CLI flags always override JSON values.
const defaultConfigJSON = `{
  "scene": {
    "agent_count": 100,
    "min_clusters": 1,
    "max_clusters": 5,
    "min_distance": 0.2,
    "bounds": [0.0, 1.0],
    "std_dev_range": [0.02, 0.08]
  },
  "sensing": {
    "grid_resolution": 16,
    "measurement_dim": 64,
    "operator_kind": "gaussian",
    "operator_scale": 0.0
  },
  "training": {
    "hidden_sizes": [128, 64],
    "learning_rate": 0.001,
    "epochs": 10,
    "batch_size": 32,
    "coord_weight": 1.0,
    "weight_weight": 0.01,
    "clip_norm": 5.0,
    "dataset_length": 2048
  },
  "evaluation": {
    "samples": 256,
    "figures": 4
  }
}
`

// fileConfig mirrors defaultConfigJSON. Pointer fields distinguish "absent"
// from zero so JSON values only fill in what the file actually sets.
type fileConfig struct {
	Scene *struct {
		AgentCount  *int        `json:"agent_count"`
		MinClusters *int        `json:"min_clusters"`
		MaxClusters *int        `json:"max_clusters"`
		MinDistance *float64    `json:"min_distance"`
		Bounds      *[2]float64 `json:"bounds"`
		StdDevRange *[2]float64 `json:"std_dev_range"`
	} `json:"scene"`
	Sensing *struct {
		GridResolution *int     `json:"grid_resolution"`
		MeasurementDim *int     `json:"measurement_dim"`
		OperatorKind   *string  `json:"operator_kind"`
		OperatorScale  *float64 `json:"operator_scale"`
	} `json:"sensing"`
	Training *struct {
		HiddenSizes   []int    `json:"hidden_sizes"`
		LearningRate  *float64 `json:"learning_rate"`
		Epochs        *int     `json:"epochs"`
		BatchSize     *int     `json:"batch_size"`
		CoordWeight   *float64 `json:"coord_weight"`
		WeightWeight  *float64 `json:"weight_weight"`
		ClipNorm      *float64 `json:"clip_norm"`
		DatasetLength *int     `json:"dataset_length"`
	} `json:"training"`
	Evaluation *struct {
		Samples *int `json:"samples"`
		Figures *int `json:"figures"`
	} `json:"evaluation"`
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to JSON configuration file (optional)")
	outDir := flag.String("out", "plots", "output directory for diagnostic figures")
	outCSV := flag.String("out-csv", "output/metrics.csv", "path for the per-sample evaluation CSV")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")

	agentCount := flag.Int("agents", 100, "agents per episode")
	minClusters := flag.Int("min-clusters", 1, "minimum active clusters per episode")
	maxClusters := flag.Int("max-clusters", 5, "maximum active clusters per episode (also the model output cardinality)")
	minDistance := flag.Float64("min-distance", 0.2, "minimum pairwise distance between cluster centers")
	gridRes := flag.Int("grid", 16, "occupancy grid resolution per axis")
	measurementDim := flag.Int("m", 64, "measurement dimension")
	operatorKind := flag.String("operator", "gaussian", "sensing operator kind")
	operatorScale := flag.Float64("operator-scale", 0, "sensing operator scale (0 = 1/sqrt(m))")

	trainLearningRate := flag.Float64("learning-rate", 0.001, "learning rate for training (overrides JSON if provided)")
	trainEpochs := flag.Int("epochs", 10, "number of training epochs (overrides JSON if provided)")
	trainBatchSize := flag.Int("batch-size", 32, "training batch size (overrides JSON if provided)")
	coordWeight := flag.Float64("coord-weight", 1.0, "coordinate term weight in the assignment cost")
	weightWeight := flag.Float64("weight-weight", 0.01, "cluster-weight term weight in the assignment cost")
	clipNorm := flag.Float64("clip-norm", 5.0, "gradient clipping norm")
	datasetLength := flag.Int("dataset-length", 2048, "logical training dataset length per epoch")

	evalN := flag.Int("eval-n", 256, "number of examples to evaluate")
	figureN := flag.Int("figures", 4, "number of diagnostic episode figures to render")

	flag.Parse()

	cfgFile, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Merge JSON values for flags the user did not set explicitly.
	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	bounds := [2]float64{0, 1}
	stdDevRange := [2]float64{0.02, 0.08}
	hidden := []int{128, 64}
	if s := cfgFile.Scene; s != nil {
		mergeInt(set, "agents", agentCount, s.AgentCount)
		mergeInt(set, "min-clusters", minClusters, s.MinClusters)
		mergeInt(set, "max-clusters", maxClusters, s.MaxClusters)
		mergeFloat(set, "min-distance", minDistance, s.MinDistance)
		if s.Bounds != nil {
			bounds = *s.Bounds
		}
		if s.StdDevRange != nil {
			stdDevRange = *s.StdDevRange
		}
	}
	if s := cfgFile.Sensing; s != nil {
		mergeInt(set, "grid", gridRes, s.GridResolution)
		mergeInt(set, "m", measurementDim, s.MeasurementDim)
		if !set["operator"] && s.OperatorKind != nil {
			*operatorKind = *s.OperatorKind
		}
		mergeFloat(set, "operator-scale", operatorScale, s.OperatorScale)
	}
	if t := cfgFile.Training; t != nil {
		if len(t.HiddenSizes) > 0 {
			hidden = t.HiddenSizes
		}
		mergeFloat(set, "learning-rate", trainLearningRate, t.LearningRate)
		mergeInt(set, "epochs", trainEpochs, t.Epochs)
		mergeInt(set, "batch-size", trainBatchSize, t.BatchSize)
		mergeFloat(set, "coord-weight", coordWeight, t.CoordWeight)
		mergeFloat(set, "weight-weight", weightWeight, t.WeightWeight)
		mergeFloat(set, "clip-norm", clipNorm, t.ClipNorm)
		mergeInt(set, "dataset-length", datasetLength, t.DatasetLength)
	}
	if e := cfgFile.Evaluation; e != nil {
		mergeInt(set, "eval-n", evalN, e.Samples)
		mergeInt(set, "figures", figureN, e.Figures)
	}

	dsCfg := datasets.ClusterDatasetConfig{
		Sampler: datasets.SamplerConfig{
			AgentCount:  *agentCount,
			MinClusters: *minClusters,
			MaxClusters: *maxClusters,
			MinDistance: *minDistance,
			Bounds:      bounds,
			StdDevRange: stdDevRange,
		},
		Length:         *datasetLength,
		MeasurementDim: *measurementDim,
		GridResolution: *gridRes,
		OperatorKind:   *operatorKind,
		OperatorScale:  *operatorScale,
		BatchSize:      *trainBatchSize,
		Seed:           *seed,
	}
	trainDS, err := datasets.NewClusterDataset(dsCfg)
	if err != nil {
		log.Fatalf("failed to build training dataset: %v", err)
	}

	// Evaluation draws come from an independent seed but share the episode
	// geometry; the operator is redrawn per dataset, which matches a fresh
	// deployment of the sensing matrix.
	evalCfg := dsCfg
	evalCfg.Length = *evalN
	evalCfg.Seed = *seed + 1
	evalDS, err := datasets.NewClusterDataset(evalCfg)
	if err != nil {
		log.Fatalf("failed to build evaluation dataset: %v", err)
	}

	model, err := setpred.NewModel(setpred.Config{
		HiddenSizes:  hidden,
		InputDim:     *measurementDim,
		MaxClusters:  *maxClusters,
		LearningRate: *trainLearningRate,
		Epochs:       *trainEpochs,
		BatchSize:    *trainBatchSize,
		Seed:         *seed,
		CoordWeight:  *coordWeight,
		WeightWeight: *weightWeight,
		ClipNorm:     float32(*clipNorm),
	})
	if err != nil {
		log.Fatalf("failed to create model: %v", err)
	}

	log.Printf("Training set-prediction model: m=%d, K=%d, hidden=%v, epochs=%d",
		*measurementDim, *maxClusters, hidden, *trainEpochs)
	start := time.Now()
	if err := model.TrainWithDataset(trainDS); err != nil {
		log.Fatalf("training failed: %v", err)
	}
	log.Printf("Training finished in %s", time.Since(start))

	indices := make([]int, evalDS.Len())
	for i := range indices {
		indices[i] = i
	}
	results, err := eval.EvaluateDataset(evalDS, model, indices)
	if err != nil {
		log.Fatalf("evaluation failed: %v", err)
	}

	if err := writeMetricsCSV(*outCSV, indices, results); err != nil {
		log.Fatalf("failed to write metrics CSV: %v", err)
	}
	log.Printf("Per-sample metrics written to %s", *outCSV)

	means, counts := eval.Aggregate(results)
	for _, k := range eval.MetricKeys {
		if counts[k] > 0 {
			log.Printf("mean %-18s %.5f  (defined on %d/%d samples)", k, means[k], counts[k], len(results))
		} else {
			log.Printf("mean %-18s undefined", k)
		}
	}

	for i := 0; i < *figureN && i < evalDS.Len(); i++ {
		ep, measurement, err := evalDS.EpisodeAt(i)
		if err != nil {
			log.Fatalf("failed to regenerate episode %d: %v", i, err)
		}
		preds, err := model.Predict(measurement)
		if err != nil {
			log.Fatalf("failed to predict episode %d: %v", i, err)
		}
		path := filepath.Join(*outDir, fmt.Sprintf("episode_%03d.png", i))
		if err := eval.SaveDiagnostic(path, &ep, preds); err != nil {
			log.Fatalf("failed to render %s: %v", path, err)
		}
	}
	if *figureN > 0 {
		log.Printf("Diagnostic figures written to %s", *outDir)
	}
}

// loadConfig reads the JSON config at path; with an empty path it ensures
// a default data.json exists next to the binary's working directory and
// loads that instead.
func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		path = "data.json"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if werr := os.WriteFile(path, []byte(defaultConfigJSON), 0644); werr != nil {
				log.Printf("warning: could not write default config %s: %v", path, werr)
				return cfg, nil
			}
			log.Printf("Wrote default configuration to %s", path)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func mergeInt(set map[string]bool, name string, dst *int, src *int) {
	if !set[name] && src != nil {
		*dst = *src
	}
}

func mergeFloat(set map[string]bool, name string, dst *float64, src *float64) {
	if !set[name] && src != nil {
		*dst = *src
	}
}

// writeMetricsCSV writes one row per evaluated sample: counts first, then the
// metric columns in eval.MetricKeys order. Undefined metrics are left empty.
func writeMetricsCSV(path string, indices []int, results []eval.Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"index", "num_pred", "num_gt", "num_matched"}
	header = append(header, eval.MetricKeys...)
	if err := w.Write(header); err != nil {
		return err
	}
	for i, r := range results {
		row := []string{
			strconv.Itoa(indices[i]),
			strconv.Itoa(r.NumPred),
			strconv.Itoa(r.NumGT),
			strconv.Itoa(r.NumMatched),
		}
		for _, k := range eval.MetricKeys {
			v := r.Metrics[k]
			if math.IsNaN(v) {
				row = append(row, "")
			} else {
				row = append(row, strconv.FormatFloat(v, 'g', 8, 64))
			}
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
