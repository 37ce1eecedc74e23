// internal/domain/order/statemachine.go
package order

// validTransitions is the single transition table every status change
// goes through, including payment confirmation and delivery take-up.
// Delivered and cancelled are terminal.
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {
		OrderStatusConfirmed,
		OrderStatusProcessing, // First delivery take-up starts fulfillment directly
		OrderStatusCancelled,
	},
	OrderStatusConfirmed: {
		OrderStatusProcessing,
		OrderStatusCancelled,
	},
	OrderStatusProcessing: {
		OrderStatusOutForDelivery,
		OrderStatusCancelled,
	},
	OrderStatusOutForDelivery: {
		OrderStatusDelivered,
		OrderStatusCancelled,
	},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// ValidStatus reports whether s is one of the six known statuses
func ValidStatus(s OrderStatus) bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransition reports whether the edge from -> to is legal
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// checkTransition returns a typed error for an illegal edge
func checkTransition(from, to OrderStatus) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
