package session

// StateType is the lifecycle state of the orchestrator.
type StateType int

const (
	// StateIdle means there is no session.
	StateIdle StateType = iota
	// StateGenerating means a script is being written.
	StateGenerating
	// StateAwaitingAudio means the script is known and audio is being
	// fetched, synthesized or decoded.
	StateAwaitingAudio
	// StatePaused means audio is loaded and not playing.
	StatePaused
	// StatePlaying means audio is playing.
	StatePlaying
	// StateCompleted is passed through when a session is saved to history.
	StateCompleted
	// StateStopped is passed through when a session is abandoned.
	StateStopped
)

var allStates = []StateType{
	StateIdle, StateGenerating, StateAwaitingAudio, StatePaused,
	StatePlaying, StateCompleted, StateStopped,
}

// String returns the string representation of the state.
func (s StateType) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateAwaitingAudio:
		return "loading audio"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Ready reports whether audio is loaded.
func (s StateType) Ready() bool {
	return s == StatePaused || s == StatePlaying
}

// Loading reports whether a session is being acquired.
func (s StateType) Loading() bool {
	return s == StateGenerating || s == StateAwaitingAudio
}

// StateMachine validates lifecycle transitions.
type StateMachine struct {
	current     StateType
	transitions map[StateType][]StateType
	onEnter     map[StateType]func()
}

// NewStateMachine creates a state machine in StateIdle.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
		transitions: map[StateType][]StateType{
			StateIdle:          {StateGenerating, StateAwaitingAudio, StateStopped},
			StateGenerating:    {StateGenerating, StateAwaitingAudio, StateIdle, StateStopped},
			StateAwaitingAudio: {StateGenerating, StateAwaitingAudio, StatePaused, StateIdle, StateStopped},
			StatePaused:        {StatePlaying, StateGenerating, StateAwaitingAudio, StateCompleted, StateStopped},
			StatePlaying:       {StatePaused, StateGenerating, StateAwaitingAudio, StateCompleted, StateStopped},
			StateCompleted:     {StateIdle},
			StateStopped:       {StateIdle},
		},
		onEnter: make(map[StateType]func()),
	}
}

// Transition moves to the given state if the table allows it.
func (sm *StateMachine) Transition(to StateType) bool {
	valid := false
	for _, state := range sm.transitions[sm.current] {
		if state == to {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}

	sm.current = to

	if enterFn, ok := sm.onEnter[to]; ok && enterFn != nil {
		enterFn()
	}
	return true
}

// Current returns the current state.
func (sm *StateMachine) Current() StateType {
	return sm.current
}

// OnEnter registers a callback for entering a state.
func (sm *StateMachine) OnEnter(state StateType, fn func()) {
	sm.onEnter[state] = fn
}
