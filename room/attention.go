// ABOUTME: Attention state machine (looking / away / back) and the "new messages" marker.
// ABOUTME: Decides when the local read marker advances and a read receipt is published.

package room

import "github.com/awebai/spacechat/logging"

// SetAttention applies a user-requested attention target: Away or Looking.
func (s *Store) SetAttention(target AttentionState) Result {
	switch target {
	case Away:
		return s.StopLooking()
	case Looking:
		return s.StartLooking()
	default:
		return s.recordAction("set attention", ignored("back is not a user-settable target"))
	}
}

// StopLooking moves to Away and places the boundary marker at the end of the feed.
func (s *Store) StopLooking() Result {
	if s.attention == Away {
		return s.recordAction("stop looking", ignored("already away"))
	}
	if s.feed.hasBoundary() {
		// Leaving again while Back: everything up to now counts as read.
		s.catchUp()
	}
	s.feed.placeBoundary()
	s.attention = Away
	return s.recordAction("stop looking", applied("away"))
}

// StartLooking leaves Away. Without new messages the marker is dropped and
// the state returns straight to Looking; otherwise it becomes Back and the
// marker stays until RemoveNewMessageIndicator.
func (s *Store) StartLooking() Result {
	switch s.attention {
	case Looking:
		return s.recordAction("start looking", ignored("already looking"))
	case Back:
		return s.recordAction("start looking", ignored("already back"))
	}
	if !s.feed.hasBoundary() || s.feed.boundaryIsLast() {
		s.catchUp()
		return s.recordAction("start looking", applied("looking, nothing arrived while away"))
	}
	s.attention = Back
	return s.recordAction("start looking", applied("back, new messages pending"))
}

// RemoveNewMessageIndicator acknowledges new messages: the marker is
// removed, the state returns to Looking and the local read marker catches
// up to the newest message, publishing a receipt only if it was stale.
func (s *Store) RemoveNewMessageIndicator() Result {
	if !s.feed.hasBoundary() && s.attention == Looking {
		return s.recordAction("remove new message indicator", ignored("no new messages indicator"))
	}
	s.catchUp()
	return s.recordAction("remove new message indicator", applied("looking"))
}

func (s *Store) catchUp() {
	s.feed.clearBoundary()
	s.attention = Looking
	local := s.cfg.LocalPersonID
	if s.lastRead[local] == s.lastMessageID {
		return
	}
	s.lastRead[local] = s.lastMessageID
	s.publish(s.lastMessageID)
}

func (s *Store) recordAction(action string, r Result) Result {
	s.log.Debug().
		Str(logging.FieldState, s.attention.String()).
		Str(logging.FieldOutcome, r.Outcome.String()).
		Str(logging.FieldReason, r.Reason).
		Msg(action)
	return r
}
