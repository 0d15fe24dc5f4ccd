package ml

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// TrainTestSplit shuffles row indices with seed and holds out
// ceil(testSize*n) of them for testing.
func TrainTestSplit(n int, testSize float64, seed int64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("test size must be in (0, 1), got %v", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest < 1 || n-nTest < 1 {
		return nil, nil, fmt.Errorf("cannot split %d rows with test size %v", n, testSize)
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// Subset picks rows of x and labels of y by index.
func Subset(x [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for k, i := range idx {
		xs[k] = x[i]
		ys[k] = y[i]
	}
	return xs, ys
}

// ROC is a receiver operating characteristic curve. FPR is non-decreasing.
type ROC struct {
	FPR        []float64 `json:"fpr"`
	TPR        []float64 `json:"tpr"`
	Thresholds []float64 `json:"thresholds"`
	AUC        float64   `json:"auc"`
}

// ROCCurve computes the curve of positive-class scores against binary labels.
// Both classes must be present.
func ROCCurve(scores []float64, labels []int) (ROC, error) {
	if len(scores) != len(labels) {
		return ROC{}, fmt.Errorf("got %d scores and %d labels", len(scores), len(labels))
	}
	var positives int
	for _, l := range labels {
		if l == 1 {
			positives++
		}
	}
	if positives == 0 || positives == len(labels) {
		return ROC{AUC: math.NaN()}, ErrSingleClass
	}

	y := make([]float64, len(scores))
	copy(y, scores)
	classes := make([]bool, len(labels))
	for i, l := range labels {
		classes[i] = l == 1
	}
	stat.SortWeightedLabeled(y, classes, nil)

	tpr, fpr, thresh := stat.ROC(nil, y, classes, nil)
	return ROC{
		FPR:        fpr,
		TPR:        tpr,
		Thresholds: thresh,
		AUC:        integrate.Trapezoidal(fpr, tpr),
	}, nil
}

// ClassMetrics holds per-class precision, recall and F1.
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// ClassificationReport summarizes predictions per class with macro and
// support-weighted averages. Undefined ratios are reported as 0.
type ClassificationReport struct {
	Classes  []ClassMetrics `json:"classes"`
	Accuracy float64        `json:"accuracy"`
	Macro    ClassMetrics   `json:"macro_avg"`
	Weighted ClassMetrics   `json:"weighted_avg"`
}

// Classify builds a report for labels 0..k-1.
func Classify(yTrue, yPred []int) (ClassificationReport, error) {
	if len(yTrue) != len(yPred) {
		return ClassificationReport{}, fmt.Errorf("got %d true labels and %d predictions", len(yTrue), len(yPred))
	}
	if len(yTrue) == 0 {
		return ClassificationReport{}, fmt.Errorf("no labels to report on")
	}

	k := 2
	for i := range yTrue {
		k = max(k, yTrue[i]+1, yPred[i]+1)
	}
	tp := make([]int, k)
	predicted := make([]int, k)
	support := make([]int, k)
	correct := 0
	for i := range yTrue {
		support[yTrue[i]]++
		predicted[yPred[i]]++
		if yTrue[i] == yPred[i] {
			tp[yTrue[i]]++
			correct++
		}
	}

	var report ClassificationReport
	total := float64(len(yTrue))
	for c := 0; c < k; c++ {
		m := ClassMetrics{
			Precision: ratio(tp[c], predicted[c]),
			Recall:    ratio(tp[c], support[c]),
			Support:   support[c],
		}
		if m.Precision+m.Recall > 0 {
			m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
		}
		report.Classes = append(report.Classes, m)

		report.Macro.Precision += m.Precision / float64(k)
		report.Macro.Recall += m.Recall / float64(k)
		report.Macro.F1 += m.F1 / float64(k)
		w := float64(m.Support) / total
		report.Weighted.Precision += m.Precision * w
		report.Weighted.Recall += m.Recall * w
		report.Weighted.F1 += m.F1 * w
	}
	report.Accuracy = float64(correct) / total
	report.Macro.Support = len(yTrue)
	report.Weighted.Support = len(yTrue)
	return report, nil
}

// String renders the report as a fixed-width text table.
func (r ClassificationReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%14s %10s %10s %10s %10s\n\n", "", "precision", "recall", "f1-score", "support")
	for c, m := range r.Classes {
		fmt.Fprintf(&b, "%14d %10.2f %10.2f %10.2f %10d\n", c, m.Precision, m.Recall, m.F1, m.Support)
	}
	fmt.Fprintf(&b, "\n%14s %10s %10s %10.2f %10d\n", "accuracy", "", "", r.Accuracy, r.Macro.Support)
	fmt.Fprintf(&b, "%14s %10.2f %10.2f %10.2f %10d\n", "macro avg", r.Macro.Precision, r.Macro.Recall, r.Macro.F1, r.Macro.Support)
	fmt.Fprintf(&b, "%14s %10.2f %10.2f %10.2f %10d\n", "weighted avg", r.Weighted.Precision, r.Weighted.Recall, r.Weighted.F1, r.Weighted.Support)
	return b.String()
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
