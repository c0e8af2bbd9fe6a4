package sequence

import "github.com/flowstate/orchestrator/core/dispatch"

// DefaultKinds returns one dispatch.Kind per inference_sequence tag in §4.3,
// bound to this package's implementation. cmd/orchestrator wires these into
// a dispatch.Registry for every run; tests that only exercise a subset build
// a narrower Registry by hand instead.
func DefaultKinds() []dispatch.Kind {
	return []dispatch.Kind{
		{Tag: "simple", Invoke: Simple},
		{Tag: "imperative", Invoke: Imperative},
		{Tag: "imperative_python", Invoke: ImperativePython},
		{Tag: "imperative_python_indirect", Invoke: ImperativePythonIndirect},
		{Tag: "imperative_in_composition", Invoke: ImperativeInComposition},
		{Tag: "judgement", Invoke: Judgement},
		{Tag: "judgement_python", Invoke: JudgementPython},
		{Tag: "judgement_in_composition", Invoke: JudgementInComposition},
		{Tag: "grouping", Invoke: Grouping},
		{Tag: "quantifying", Invoke: Quantifying},
		{Tag: "assigning", Invoke: Assigning},
		{Tag: "timing", Invoke: Timing},
	}
}
