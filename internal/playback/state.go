// SPDX-License-Identifier: MIT
package playback

// State is the lifecycle of the current track.
type State int32

const (
	Idle     State = iota // Nothing loaded yet.
	Loading               // Previous producer stopped, new track being wired.
	Playing               // Producer running.
	Finished              // Track ran to its end.
	Stopped               // Producer cancelled by Stop or a newer load.
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Finished:
		return "finished"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Terminal reports whether the producer for this state has exited.
func (s State) Terminal() bool {
	return s == Finished || s == Stopped
}
