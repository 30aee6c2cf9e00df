// Package freshness decides, per poll and per data domain, whether a
// requesting node needs data and whether the server-side snapshot must be
// rebuilt first. The decision compares three optional timestamps: the
// requester's last successful sync, the snapshot file's last write, and
// the upstream source's last modification.
package freshness

import "time"

// Decision is the outcome of a staleness arbitration.
type Decision int

const (
	// None: the requester is current; send nothing.
	None Decision = iota
	// Send: the existing snapshot is newer than the requester; resend it.
	Send
	// RefreshAndSend: the upstream source is newest; rebuild the snapshot
	// and send it.
	RefreshAndSend
)

// String returns the decision name for logs.
func (d Decision) String() string {
	switch d {
	case Send:
		return "send"
	case RefreshAndSend:
		return "refresh_and_send"
	default:
		return "none"
	}
}

// Decide arbitrates between requester, snapshot, and source times. A nil
// pointer means the corresponding time is unknown. Ties break toward the
// less disruptive action: requester wins over snapshot, snapshot wins
// over source. With exactly one time unknown the remaining two are
// compared directly; with two or more unknown the result is None.
func Decide(requester, snapshot, source *time.Time) Decision {
	switch {
	case requester != nil && snapshot != nil && source != nil:
		if !requester.Before(*snapshot) && !requester.Before(*source) {
			return None
		}
		if !snapshot.Before(*requester) && !snapshot.Before(*source) {
			return Send
		}
		if !source.Before(*requester) && !source.Before(*snapshot) {
			return RefreshAndSend
		}
	case requester == nil && snapshot != nil && source != nil:
		if !snapshot.Before(*source) {
			return Send
		}
		return RefreshAndSend
	case requester != nil && snapshot == nil && source != nil:
		if !requester.Before(*source) {
			return None
		}
		return RefreshAndSend
	case requester != nil && snapshot != nil && source == nil:
		if !requester.Before(*snapshot) {
			return None
		}
		return Send
	}
	return None
}
