package tracer

// Dedup prunes near-duplicate flows after tracing (spec.md §4.5). Two flows with
// non-empty interaction sets and an overlap ratio ≥ 0.7 are compared; if they share
// the same action+target (or both are the catch-all null), the weaker one is dropped.
func Dedup(flows []FlowSuggestion) []FlowSuggestion {
	dropped := make([]bool, len(flows))
	for i := range flows {
		if dropped[i] {
			continue
		}
		for j := i + 1; j < len(flows); j++ {
			if dropped[j] {
				continue
			}
			if len(flows[i].InteractionIDs) == 0 || len(flows[j].InteractionIDs) == 0 {
				continue
			}
			if overlapRatio(flows[i].InteractionIDs, flows[j].InteractionIDs) < 0.7 {
				continue
			}
			if !sameActionTarget(flows[i], flows[j]) {
				continue // high overlap but semantically distinct; keep both
			}
			if worseIndex(flows[i], flows[j]) == 0 {
				dropped[i] = true
				break
			}
			dropped[j] = true
		}
	}

	out := make([]FlowSuggestion, 0, len(flows))
	for i, f := range flows {
		if !dropped[i] {
			out = append(out, f)
		}
	}
	return out
}

func overlapRatio(a, b []int64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[int64]bool, len(a))
	for _, id := range a {
		setA[id] = true
	}
	shared := 0
	for _, id := range b {
		if setA[id] {
			shared++
		}
	}
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	return float64(shared) / float64(minLen)
}

func sameActionTarget(a, b FlowSuggestion) bool {
	return a.Action == b.Action && a.TargetEntity == b.TargetEntity
}

// worseIndex applies the drop-rule chain (spec.md §4.5): keep higher tier, then more
// definition steps, then fewer interactions (the more focused flow), then the more
// specific (non-null action/target). Returns 0 if a is the one to drop, 1 if b is.
func worseIndex(a, b FlowSuggestion) int {
	if a.Tier != b.Tier {
		if a.Tier < b.Tier {
			return 0
		}
		return 1
	}
	if len(a.DefinitionSteps) != len(b.DefinitionSteps) {
		if len(a.DefinitionSteps) < len(b.DefinitionSteps) {
			return 0
		}
		return 1
	}
	if len(a.InteractionIDs) != len(b.InteractionIDs) {
		if len(a.InteractionIDs) > len(b.InteractionIDs) {
			return 0
		}
		return 1
	}
	aSpecific := a.Action != "" || a.TargetEntity != ""
	bSpecific := b.Action != "" || b.TargetEntity != ""
	if aSpecific != bSpecific {
		if !aSpecific {
			return 0
		}
		return 1
	}
	return 1 // fully tied: deterministic fallback keeps the earlier flow
}
