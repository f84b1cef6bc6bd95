package playback

// action is the side effect of a stream event transition.
type action int

const (
	actionIgnore        action = iota
	actionAnnounce             // Emit the now playing notice
	actionRecover              // Report the failure and skip the head
	actionAdvance              // Finish the head and schedule the next play
	actionClearStopping        // Consume the stop guard
)

func (a action) String() string {
	switch a {
	case actionIgnore:
		return "ignore"
	case actionAnnounce:
		return "announce"
	case actionRecover:
		return "recover"
	case actionAdvance:
		return "advance"
	case actionClearStopping:
		return "clear_stopping"
	default:
		return "unknown"
	}
}

type transitionKey struct {
	phase State
	kind  StreamEventKind
}

type transition struct {
	next   State
	action action
}

// transitions maps (phase, stream event) to the next state and side effect.
// Pairs missing from the table are ignored and leave the state unchanged.
var transitions = map[transitionKey]transition{
	{StatePlaying, StreamStart}: {StatePlaying, actionAnnounce},
	{StatePaused, StreamStart}:  {StatePaused, actionAnnounce},

	{StatePlaying, StreamError}: {StateIdle, actionRecover},
	{StatePaused, StreamError}:  {StateIdle, actionRecover},

	{StatePlaying, StreamFinish}: {StateIdle, actionAdvance},
	{StatePlaying, StreamClose}:  {StateIdle, actionAdvance},
	{StatePaused, StreamFinish}:  {StateIdle, actionAdvance},
	{StatePaused, StreamClose}:   {StateIdle, actionAdvance},

	{StateStopping, StreamFinish}: {StateIdle, actionClearStopping},
	{StateStopping, StreamClose}:  {StateIdle, actionClearStopping},
}

func lookupTransition(phase State, kind StreamEventKind) (transition, bool) {
	t, ok := transitions[transitionKey{phase: phase, kind: kind}]
	return t, ok
}
