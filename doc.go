// Package godetect provides unsupervised outlier detection for Go.
//
// Every detector follows the same contract: Fit estimates the model from
// unlabeled training data and calibrates a decision threshold, AnomalyScore
// assigns one real-valued score per sample (higher means more anomalous), and
// Detect compares scores against the threshold to label each sample Inlier
// (+1) or Outlier (-1).
//
// # Quick Start
//
//	package main
//
//	import (
//	    "fmt"
//	    "log"
//
//	    "github.com/YuminosukeSato/godetect/datasets"
//	    "github.com/YuminosukeSato/godetect/detector"
//	)
//
//	func main() {
//	    X, _ := datasets.MakeBlobs(
//	        datasets.WithNSamples(100),
//	        datasets.WithOutliers(5, -50, 50),
//	        datasets.WithRandomState(0),
//	    )
//
//	    det := detector.NewSparseStructureLearning()
//	    labels, err := det.FitDetect(X)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(labels)
//	}
//
// # Packages
//
//   - detector: the outlier detection techniques (SparseStructureLearning,
//     MiniBatchKMeans, PCA, KNN) and JSON model persistence
//   - cluster: the clustering estimator backing the k-means detector
//   - preprocessing: scalers usable standalone or in a pipeline
//   - pipeline: chains transformers with a final detector
//   - datasets: synthetic data generators
//   - metrics: precision, recall, F1, and ROC/AUC over detection labels
//   - plot: renders scores and ROC curves to image files
//   - core/model: the shared estimator lifecycle and capability interfaces
//
// # Thresholds
//
// Each detector fixes its threshold at fit time from the empirical quantile
// of the training scores, controlled by the detector's false positive rate
// option: with an FPR of 0.01, roughly one percent of training-like data is
// flagged. Detectors that implement model.ThresholdDetector also accept an
// explicit threshold per call.
//
// Datasets with more than 1000 samples are scored in parallel across CPU
// cores; scoring on a fitted model is deterministic either way.
package godetect
