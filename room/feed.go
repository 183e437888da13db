// ABOUTME: Ordered feed of chat entries owned by the Store.
// ABOUTME: Tracks the position of the single "new messages" boundary.

package room

import "slices"

// feed is the ordered message sequence owned by the Store.
type feed struct {
	entries []ChatEntry
	// boundary is the index of the "new messages" marker, -1 when absent.
	boundary int
}

func newFeed() feed {
	return feed{boundary: -1}
}

func (f *feed) len() int { return len(f.entries) }

func (f *feed) append(e ChatEntry) {
	f.entries = append(f.entries, e)
}

func (f *feed) insertAt(i int, e ChatEntry) {
	f.entries = slices.Insert(f.entries, i, e)
	if f.boundary >= i && e.Kind != EntryBoundary {
		f.boundary++
	}
}

func (f *feed) removeAt(i int) ChatEntry {
	e := f.entries[i]
	f.entries = slices.Delete(f.entries, i, i+1)
	if f.boundary > i {
		f.boundary--
	}
	return e
}

// indexOf returns the index of the message with the given id, or -1.
func (f *feed) indexOf(messageID ID) int {
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].Kind == EntryMessage && f.entries[i].MessageID == messageID {
			return i
		}
	}
	return -1
}

func (f *feed) hasBoundary() bool { return f.boundary >= 0 }

// placeBoundary appends the marker after clearing any existing one.
func (f *feed) placeBoundary() {
	f.clearBoundary()
	f.boundary = len(f.entries)
	f.insertAt(f.boundary, boundaryEntry())
}

// clearBoundary removes the marker if present and reports whether it did.
func (f *feed) clearBoundary() bool {
	if !f.hasBoundary() {
		return false
	}
	if f.boundary < len(f.entries) && f.entries[f.boundary].Kind == EntryBoundary {
		f.removeAt(f.boundary)
	}
	f.boundary = -1
	return true
}

// boundaryIsLast reports whether nothing was appended after the marker.
func (f *feed) boundaryIsLast() bool {
	return f.hasBoundary() && f.boundary == len(f.entries)-1
}
