package attendance

import "math/rand/v2"

// LivenessAction is a physical action the subject must perform in front of
// the camera. The string values are sent verbatim to the vision model.
type LivenessAction string

// The closed liveness action vocabulary.
const (
	ActionBlink     LivenessAction = "Blink your eyes"
	ActionSmile     LivenessAction = "Smile widely"
	ActionLookLeft  LivenessAction = "Turn head slightly left"
	ActionLookRight LivenessAction = "Turn head slightly right"
	ActionOpenMouth LivenessAction = "Open your mouth"
)

var livenessActions = []LivenessAction{
	ActionBlink,
	ActionSmile,
	ActionLookLeft,
	ActionLookRight,
	ActionOpenMouth,
}

// LivenessActions returns a copy of the action vocabulary in its fixed order.
func LivenessActions() []LivenessAction {
	out := make([]LivenessAction, len(livenessActions))
	copy(out, livenessActions)
	return out
}

// Valid reports whether a belongs to the vocabulary.
func (a LivenessAction) Valid() bool {
	for _, known := range livenessActions {
		if a == known {
			return true
		}
	}
	return false
}

// ChooseChallenge draws one action uniformly at random using rng.
// A nil rng falls back to the global source.
func ChooseChallenge(rng *rand.Rand) LivenessAction {
	if rng == nil {
		return livenessActions[rand.IntN(len(livenessActions))]
	}
	return livenessActions[rng.IntN(len(livenessActions))]
}
