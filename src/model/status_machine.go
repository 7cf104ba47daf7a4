package model

// CanTransitionStatus reports whether an order may move from one status to
// another. Terminal statuses never transition again; ERROR is only recoverable
// through an explicit retry back to PENDING (or a terminal cancellation).
func CanTransitionStatus(from, to string) bool {
	if from == to {
		return true
	}
	if IsTerminalStatus(from) {
		return false
	}
	if IsTerminalStatus(to) {
		return true
	}

	switch from {
	case OrderStatusError:
		return to == OrderStatusPending
	case OrderStatusWaitingTrigger:
		return to == OrderStatusPending || to == OrderStatusError
	case OrderStatusPending:
		switch to {
		case OrderStatusOpen, OrderStatusNew, OrderStatusAccepted,
			OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusError:
			return true
		}
		return false
	case OrderStatusOpen, OrderStatusNew, OrderStatusAccepted:
		switch to {
		case OrderStatusOpen, OrderStatusNew, OrderStatusAccepted,
			OrderStatusPartiallyFilled, OrderStatusFilled, OrderStatusError:
			return true
		}
		return false
	case OrderStatusPartiallyFilled:
		return to == OrderStatusPartiallyFilled || to == OrderStatusFilled || to == OrderStatusError
	case OrderStatusFilled:
		// Only terminal transitions (handled above) leave FILLED.
		return false
	case OrderStatusUnknown:
		return true
	}
	return false
}
