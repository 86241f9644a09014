// Package pipeline holds the pure parts of video generation: the stage
// dependency graph, progress aggregation and the retry policy.
package pipeline

import "github.com/storyreel/api/internal/model"

// StageDef declares one stage of the pipeline
type StageDef struct {
	Name      model.StageName
	DependsOn []model.StageName
	FanOut    bool
	Weight    int
}

// Stages is the fixed pipeline in execution order. Weights sum to 100.
var Stages = []StageDef{
	{Name: model.StageScript, Weight: 10},
	{Name: model.StageImages, DependsOn: []model.StageName{model.StageScript}, FanOut: true, Weight: 35},
	{Name: model.StageNarration, DependsOn: []model.StageName{model.StageScript}, FanOut: true, Weight: 35},
	{Name: model.StageComposition, DependsOn: []model.StageName{model.StageImages, model.StageNarration}, Weight: 20},
}

// FinalStage completes the job when it succeeds.
const FinalStage = model.StageComposition

// Lookup returns the declaration of a stage.
func Lookup(name model.StageName) (StageDef, bool) {
	for _, s := range Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageDef{}, false
}

// NewStageStates builds the initial stage list of a job. Stages that do not
// fan out get their single item up front; fan-out stages get their items
// once the script is known.
func NewStageStates() []model.StageState {
	states := make([]model.StageState, 0, len(Stages))
	for _, s := range Stages {
		st := model.StageState{
			Name:      s.Name,
			Status:    model.StageStatusPending,
			DependsOn: append([]model.StageName(nil), s.DependsOn...),
			FanOut:    s.FanOut,
		}
		if !s.FanOut {
			st.Items = []model.ItemState{{Index: 0, Status: model.StageStatusPending}}
		}
		states = append(states, st)
	}
	return states
}

// Ready returns the pending stages whose dependencies have all succeeded.
func Ready(job *model.Job) []model.StageName {
	var ready []model.StageName
	for _, st := range job.Stages {
		if st.Status != model.StageStatusPending {
			continue
		}
		ok := true
		for _, dep := range st.DependsOn {
			d := job.Stage(dep)
			if d == nil || d.Status != model.StageStatusSucceeded {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, st.Name)
		}
	}
	return ready
}

// Settled reports whether no item of the stage is pending or running.
func Settled(st *model.StageState) bool {
	for _, it := range st.Items {
		if it.Status == model.StageStatusPending || it.Status == model.StageStatusRunning {
			return false
		}
	}
	return true
}

// FirstFailed returns the failed item with the lowest index, or nil.
func FirstFailed(st *model.StageState) *model.ItemState {
	for i := range st.Items {
		if st.Items[i].Status == model.StageStatusFailed {
			return &st.Items[i]
		}
	}
	return nil
}
