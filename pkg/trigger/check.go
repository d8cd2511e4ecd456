// Package trigger decides whether continued engagement in a conversation has
// stopped being useful. Four independent detectors look for repeated
// near-duplicate requests, a collapse in user message velocity, growing
// scope, and follow-up requests after the user already got enough; Check
// runs them all and reports which fired.
//
// Everything here is a pure function of its arguments. Nothing is cached or
// retained between calls, so calls may run concurrently.
package trigger

import (
	"strings"

	"github.com/zhy0216/offramp/pkg/types"
)

// Signal tags a detector that fired.
type Signal string

const (
	SignalLoop             Signal = "loop"
	SignalVelocityCollapse Signal = "velocity-collapse"
	SignalScopeCreep       Signal = "scope-creep"
	SignalSaturation       Signal = "saturation"
)

// Result is the aggregate outcome of Check. Signals is never nil and lists
// fired detectors in evaluation order.
type Result struct {
	Triggered bool     `json:"triggered" yaml:"triggered"`
	Signals   []Signal `json:"signals" yaml:"signals"`
}

// Strings returns the signal tags as plain strings.
func (r Result) Strings() []string {
	out := make([]string, len(r.Signals))
	for i, s := range r.Signals {
		out[i] = string(s)
	}
	return out
}

// Detector pairs a signal with the function that decides it.
type Detector struct {
	Signal Signal
	// OptionKey is the detector's key in an options document.
	OptionKey string
	Run       func(conv []types.Message, opts Options) bool
}

// Detectors returns the detectors in evaluation order.
func Detectors() []Detector {
	return []Detector{
		{
			Signal:    SignalLoop,
			OptionKey: "loop",
			Run:       func(c []types.Message, o Options) bool { return DetectLoop(c, o.Loop) },
		},
		{
			Signal:    SignalVelocityCollapse,
			OptionKey: "velocityCollapse",
			Run:       func(c []types.Message, o Options) bool { return DetectVelocityCollapse(c, o.VelocityCollapse) },
		},
		{
			Signal:    SignalScopeCreep,
			OptionKey: "scopeCreep",
			Run:       func(c []types.Message, o Options) bool { return DetectScopeCreep(c, o.ScopeCreep) },
		},
		{
			Signal:    SignalSaturation,
			OptionKey: "saturation",
			Run:       func(c []types.Message, o Options) bool { return DetectSaturation(c, o.Saturation) },
		},
	}
}

// Lookup finds a detector by signal tag or option key, case-insensitively.
func Lookup(name string) (Detector, bool) {
	for _, d := range Detectors() {
		if strings.EqualFold(name, string(d.Signal)) || strings.EqualFold(name, d.OptionKey) {
			return d, true
		}
	}
	return Detector{}, false
}

// Check validates conv and opts, then runs every detector.
func Check(conv []types.Message, opts Options) (Result, error) {
	if err := Validate(conv); err != nil {
		return Result{Signals: []Signal{}}, err
	}
	if err := opts.Validate(); err != nil {
		return Result{Signals: []Signal{}}, err
	}
	return Evaluate(conv, opts), nil
}

// Evaluate runs every detector without validating its input. None of them
// short-circuits another.
func Evaluate(conv []types.Message, opts Options) Result {
	res := Result{Signals: []Signal{}}
	for _, d := range Detectors() {
		if d.Run(conv, opts) {
			res.Signals = append(res.Signals, d.Signal)
		}
	}
	res.Triggered = len(res.Signals) > 0
	return res
}
