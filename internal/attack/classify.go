package attack

import (
	"errors"
	"sort"
)

// ErrLengthMismatch is returned when labels and predictions differ in length.
var ErrLengthMismatch = errors.New("attack: label and prediction counts differ")

// Classification holds support-weighted metrics of a multi-class target model.
type Classification struct {
	Samples   int     `json:"samples"`
	Classes   []int   `json:"classes"`
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

// ClassificationReport scores predictions of the target model. Per-class
// precision and recall are averaged with each class weighted by its number
// of true instances; a class that is never predicted has precision 0.
func ClassificationReport(yTrue, yPred []int) (Classification, error) {
	if len(yTrue) != len(yPred) {
		return Classification{}, ErrLengthMismatch
	}
	out := Classification{Samples: len(yTrue)}
	if len(yTrue) == 0 {
		return out, nil
	}

	support := make(map[int]int)
	predicted := make(map[int]int)
	hits := make(map[int]int)
	correct := 0
	for i := range yTrue {
		support[yTrue[i]]++
		predicted[yPred[i]]++
		if yTrue[i] == yPred[i] {
			hits[yTrue[i]]++
			correct++
		}
	}

	seen := make(map[int]struct{}, len(support)+len(predicted))
	for c := range support {
		seen[c] = struct{}{}
	}
	for c := range predicted {
		seen[c] = struct{}{}
	}
	for c := range seen {
		out.Classes = append(out.Classes, c)
	}
	sort.Ints(out.Classes)

	total := float64(len(yTrue))
	for _, c := range out.Classes {
		weight := float64(support[c]) / total
		out.Precision += weight * ratio(hits[c], predicted[c])
		out.Recall += weight * ratio(hits[c], support[c])
	}
	out.Accuracy = ratio(correct, len(yTrue))
	return out, nil
}
