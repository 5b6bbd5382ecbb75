package outgoing

// UnscheduledPriority computes a sender's own transmitPriority for bytes
// within a message's unscheduled range (spec.md §4.3), from the message's
// total length and an ascending vector of size cutoffs published by the
// receiver: the smallest messages get the highest priority class.
func UnscheduledPriority(totalLength uint32, cutoffs []uint32) uint8 {
	for i, c := range cutoffs {
		if totalLength <= c {
			return uint8(len(cutoffs) - 1 - i)
		}
	}
	return 0
}
