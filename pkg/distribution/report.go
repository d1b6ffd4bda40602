package distribution

import (
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/chainsnap/pkg/instance"
)

// Outcome is the result of mirroring to one target.
type Outcome struct {
	Target   string        `json:"target"`
	Kind     string        `json:"kind"`
	Uploaded []string      `json:"uploaded,omitempty"`
	Skipped  []string      `json:"skipped,omitempty"`
	Pruned   []string      `json:"pruned,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`

	err error
}

// Err returns the failure, or nil.
func (o Outcome) Err() error { return o.err }

// OK reports whether the target was mirrored.
func (o Outcome) OK() bool { return o.err == nil }

func (o *Outcome) fail(err error) {
	o.err = err
	o.Error = err.Error()
}

// Report aggregates the outcomes of one distribution run.
type Report struct {
	Network  instance.Network `json:"network"`
	Outcomes []Outcome        `json:"outcomes"`
}

// Failed returns the outcomes that errored.
func (r Report) Failed() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if !o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Succeeded returns the outcomes that completed.
func (r Report) Succeeded() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.OK() {
			out = append(out, o)
		}
	}
	return out
}

// Summary is a one-line description such as "1 succeeded, 1 failed (mirror-a)".
func (r Report) Summary() string {
	failed := r.Failed()
	s := fmt.Sprintf("%d succeeded, %d failed", len(r.Outcomes)-len(failed), len(failed))
	if len(failed) > 0 {
		names := make([]string, len(failed))
		for i, o := range failed {
			names[i] = o.Target
		}
		s += " (" + strings.Join(names, ", ") + ")"
	}
	return s
}

func (r Report) Headers() []string {
	return []string{"TARGET", "KIND", "RESULT", "UPLOADED", "PRUNED", "DURATION", "DETAIL"}
}

func (r Report) Rows() [][]string {
	rows := make([][]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		result, detail := "ok", strings.Join(o.Warnings, "; ")
		if !o.OK() {
			result, detail = "failed", o.Error
		}
		rows = append(rows, []string{
			o.Target, o.Kind, result,
			fmt.Sprint(len(o.Uploaded)), fmt.Sprint(len(o.Pruned)),
			o.Duration.Round(time.Millisecond).String(), detail,
		})
	}
	return rows
}
