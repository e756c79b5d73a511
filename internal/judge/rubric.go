package judge

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/hacksail-client/internal/types"
)

var ErrUnknownRound = errors.New("review round must be 1 or 2")
var ErrUnknownCriterion = errors.New("no such criterion")

type criterion struct {
	key   string
	label string
	max   int
}

// Keys match the backend's stored field names, typos included.
var rubrics = map[int][]criterion{
	1: {
		{"Core", "Core Functionality", 20},
		{"UIUX", "UI/UX Design", 10},
		{"Technical", "Technical Depth", 10},
		{"Progress", "Progress & Team Effort", 10},
	},
	2: {
		{"functionality", "End-to-End Functionality", 15},
		{"preformance", "Scalability & Performance", 10},
		{"UseCase", "Real-World Impact & Use Case", 10},
		{"Demo", "Demo Quality & Communication", 10},
		{"extension", "Innovation & Extension", 5},
	},
}

// Rubric is one judge's marks for one team in one round.
type Rubric struct {
	round int
	items []criterion
	marks map[string]int
}

func NewRubric(round int) (*Rubric, error) {
	items, ok := rubrics[round]
	if !ok {
		return nil, ErrUnknownRound
	}
	return &Rubric{round: round, items: items, marks: make(map[string]int, len(items))}, nil
}

func (r *Rubric) Round() int { return r.round }

// Keys lists the criteria in display order.
func (r *Rubric) Keys() []string {
	out := make([]string, len(r.items))
	for i, c := range r.items {
		out[i] = c.key
	}
	return out
}

// Set records marks for key, clamped to [0, max]. It returns the stored value.
func (r *Rubric) Set(key string, marks int) (int, error) {
	for _, c := range r.items {
		if c.key != key {
			continue
		}
		marks = min(max(marks, 0), c.max)
		r.marks[key] = marks
		return marks, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCriterion, key)
}

func (r *Rubric) Total() int {
	total := 0
	for _, m := range r.marks {
		total += m
	}
	return total
}

func (r *Rubric) Max() int {
	total := 0
	for _, c := range r.items {
		total += c.max
	}
	return total
}

func (r *Rubric) Reset() { clear(r.marks) }

// Submission is the backend body for this round.
func (r *Rubric) Submission() types.ReviewSubmission {
	items := make(map[string]types.RubricItem, len(r.items))
	for _, c := range r.items {
		items[c.key] = types.RubricItem{Criteria: c.label, Marks: r.marks[c.key], Max: c.max}
	}
	sub := types.ReviewSubmission{Score: r.Total()}
	if r.round == 1 {
		sub.FirstReview = items
	} else {
		sub.SecondReview = items
	}
	return sub
}
