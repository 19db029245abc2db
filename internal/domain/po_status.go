package domain

// DerivePurchaseOrderStatus computes the receiving status of a purchase
// order purely from its items' (ordered, received) pairs. The stored status
// column is only ever assigned from this function once items exist, which
// keeps it from drifting out of sync with the item rows.
func DerivePurchaseOrderStatus(items []PurchaseOrderItem) string {
	if len(items) == 0 {
		return POStatusApproved
	}

	anyReceived := false
	allReceived := true
	for _, item := range items {
		if item.QtyReceived > 0 {
			anyReceived = true
		}
		if item.QtyReceived < item.QtyOrdered {
			allReceived = false
		}
	}

	switch {
	case allReceived:
		return POStatusReceived
	case anyReceived:
		return POStatusPartiallyReceived
	default:
		return POStatusApproved
	}
}

// TerminalPOStatus reports whether a purchase order accepts further mutation.
func TerminalPOStatus(status string) bool {
	return status == POStatusClosed || status == POStatusCancelled
}
