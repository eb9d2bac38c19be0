package domain

// Status values for output orders, transfers and production orders. Each
// lifecycle validates transitions against a single table here instead of
// scattering guards across operations.

// Order statuses (type = Export)
const (
	OrderStatusDraft      = "Draft"
	OrderStatusOrder      = "Order"
	OrderStatusDelivering = "Delivering"
	OrderStatusDone       = "Done"
	OrderStatusCancel     = "Cancel"
)

// Transfer statuses (type = Transfer)
const (
	TransferStatusInTransit   = "InTransit"
	TransferStatusTransferred = "Transferred"
	TransferStatusCancel      = "Cancel"
)

// Production statuses
const (
	ProductionStatusPending         = "Pending"
	ProductionStatusProcessing      = "Processing"
	ProductionStatusWaitingApproval = "WaitingApproval"
	ProductionStatusFinished        = "Finished"
	ProductionStatusCancel          = "Cancel"
)

var orderTransitions = map[string][]string{
	OrderStatusDraft:      {OrderStatusOrder, OrderStatusCancel},
	OrderStatusOrder:      {OrderStatusDelivering},
	OrderStatusDelivering: {OrderStatusDone},
	// Done -> Cancel happens only through a full return, which goes
	// through ReturnOrder rather than a plain status update.
	OrderStatusDone:   {OrderStatusCancel},
	OrderStatusCancel: {},
}

var transferTransitions = map[string][]string{
	TransferStatusInTransit:   {TransferStatusTransferred, TransferStatusCancel},
	TransferStatusTransferred: {},
	TransferStatusCancel:      {},
}

var productionTransitions = map[string][]string{
	ProductionStatusPending:         {ProductionStatusProcessing, ProductionStatusCancel},
	ProductionStatusProcessing:      {ProductionStatusWaitingApproval},
	ProductionStatusWaitingApproval: {ProductionStatusFinished},
	ProductionStatusFinished:        {},
	ProductionStatusCancel:          {},
}

func canTransition(table map[string][]string, from, to string) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanOrderTransition reports whether an output order may move from one
// status to another.
func CanOrderTransition(from, to string) bool {
	return canTransition(orderTransitions, from, to)
}

// CanTransferTransition reports whether a transfer may move from one
// status to another.
func CanTransferTransition(from, to string) bool {
	return canTransition(transferTransitions, from, to)
}

// CanProductionTransition reports whether a production order may move from
// one status to another.
func CanProductionTransition(from, to string) bool {
	return canTransition(productionTransitions, from, to)
}

// IsOrderEditable reports whether order lines may still be reconciled.
// Draft and Order allow line edits; later statuses freeze the lines.
func IsOrderEditable(status string) bool {
	return status == OrderStatusDraft || status == OrderStatusOrder
}
