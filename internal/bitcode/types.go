// Package bitcode implements the mutation-point catalogue and mutation pass
// driver: the two pieces of the pipeline that talk to the external `opt
// -load <lib> -mutest` LLVM pass.
package bitcode

import (
	"encoding/json"
	"fmt"
)

// MutationPoint identifies one place the mutation pass can alter the
// bitcode: a named rule applied to one instruction of one function. Points
// are immutable and totally ordered by (Rule, Function, Instruction).
type MutationPoint struct {
	Rule        string `json:"rule"`
	Function    string `json:"function"`
	Instruction int    `json:"instruction"`
}

// Less reports whether p sorts before other under the point's total order.
func (p MutationPoint) Less(other MutationPoint) bool {
	if p.Rule != other.Rule {
		return p.Rule < other.Rule
	}
	if p.Function != other.Function {
		return p.Function < other.Function
	}
	return p.Instruction < other.Instruction
}

func (p MutationPoint) String() string {
	return fmt.Sprintf("%s::%s@%d", p.Rule, p.Function, p.Instruction)
}

// MutationStep is one recorded application of a MutationPoint: the point
// plus the opaque, pass-defined payload describing exactly what changed.
// Package is left as raw JSON because its shape is owned entirely by the
// external mutation pass, not by this driver.
type MutationStep struct {
	Rule        string          `json:"rule"`
	Function    string          `json:"function"`
	Instruction int             `json:"instruction"`
	Package     json.RawMessage `json:"package"`

	// Timestamp and SecondMutation are optional fields some mutation
	// passes attach; they are forwarded verbatim and never interpreted
	// here.
	Timestamp      *string `json:"timestamp,omitempty"`
	SecondMutation *bool   `json:"second_mutation,omitempty"`
}

// Point extracts the MutationPoint this step applied.
func (s MutationStep) Point() MutationPoint {
	return MutationPoint{Rule: s.Rule, Function: s.Function, Instruction: s.Instruction}
}

// Trace is an ordered sequence of MutationSteps applied to the base
// bitcode, one after another. A Trace must never contain two steps
// targeting the same (Function, Instruction) pair, since replaying the
// second would be applying a mutation pass to bitcode the first step
// already altered at that exact site.
type Trace []MutationStep

// Validate checks the no-duplicate-(function,instruction) invariant.
func (t Trace) Validate() error {
	seen := make(map[[2]string]struct{}, len(t))
	for _, step := range t {
		key := [2]string{step.Function, fmt.Sprintf("%d", step.Instruction)}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("bitcode: trace contains duplicate mutation site %s@%d", step.Function, step.Instruction)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Points returns the MutationPoint each step in the trace applied, in
// order.
func (t Trace) Points() []MutationPoint {
	out := make([]MutationPoint, len(t))
	for i, step := range t {
		out[i] = step.Point()
	}
	return out
}

// Contains reports whether the trace already has a step at the given
// point's (Function, Instruction) site, regardless of rule.
func (t Trace) Contains(p MutationPoint) bool {
	for _, step := range t {
		if step.Function == p.Function && step.Instruction == p.Instruction {
			return true
		}
	}
	return false
}
