package slots

import "sort"

// insertSorted places s into slots, which must be ordered by StartTime.
// A slot with the same start is left as is.
func insertSorted(slots []Slot, s Slot) []Slot {
	i := sort.Search(len(slots), func(i int) bool {
		return !slots[i].StartTime.Before(s.StartTime)
	})
	if i < len(slots) && slots[i].StartTime.Equal(s.StartTime) {
		return slots
	}

	slots = append(slots, Slot{})
	copy(slots[i+1:], slots[i:])
	slots[i] = s
	return slots
}
