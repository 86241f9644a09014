package pipeline

import "github.com/storyreel/api/internal/model"

// Progress computes the aggregate 0-100 progress of the given stages.
// Each stage contributes its weight; inside a stage the weight is split
// evenly across items and credited only for succeeded items. A fan-out
// stage whose items are not known yet contributes nothing.
func Progress(stages []model.StageState) int {
	var total float64
	for _, st := range stages {
		def, ok := Lookup(st.Name)
		if !ok {
			continue
		}
		if st.Status == model.StageStatusSucceeded {
			total += float64(def.Weight)
			continue
		}
		if len(st.Items) == 0 {
			continue
		}
		done := 0
		for _, it := range st.Items {
			if it.Status == model.StageStatusSucceeded {
				done++
			}
		}
		total += float64(def.Weight) * float64(done) / float64(len(st.Items))
	}
	p := int(total)
	if p > 100 {
		p = 100
	}
	return p
}
