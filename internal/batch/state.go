package batch

// State is the driver's position in a batch run. FAILED and DONE are terminal.
type State int

const (
	StateInit State = iota
	StateResolvingUser
	StateListingTracks
	StateProcessingItem
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:           "INIT",
	StateResolvingUser:  "RESOLVING_USER",
	StateListingTracks:  "LISTING_TRACKS",
	StateProcessingItem: "PROCESSING_ITEM",
	StateDone:           "DONE",
	StateFailed:         "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}
