package interview

// Phase is the dialogue phase derived from the user-turn count. It is never
// stored; recompute it from the session whenever needed.
type Phase string

const (
	PhaseWarmUp     Phase = "WARM_UP"
	PhaseStructured Phase = "STRUCTURED"
)

// PhaseFor returns WARM_UP while fewer than warmUpTurns user utterances have
// been recorded, STRUCTURED from then on. Since the turn count only grows,
// the transition happens at most once per session and never reverts.
func PhaseFor(userTurns, warmUpTurns int) Phase {
	if userTurns < warmUpTurns {
		return PhaseWarmUp
	}
	return PhaseStructured
}
