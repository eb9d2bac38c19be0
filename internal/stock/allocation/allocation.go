// Package allocation implements FIFO lot selection and its LIFO reversal
// as pure planning over in-memory batches. The service layer applies a
// plan's steps inside a database transaction, so planning stays trivially
// testable and the all-or-nothing property falls out of the transaction.
package allocation

import (
	"fmt"
	"sort"
	"time"

	"github.com/stockflow/stockflow-backend/internal/stock/domain"
)

// Step is one batch mutation: add Quantity to the batch's quantity_out
// (reserve) or subtract it (release).
type Step struct {
	BatchID  string
	Quantity int
}

// Plan is an ordered list of batch mutations that together satisfy a
// requested quantity.
type Plan struct {
	Steps []Step
	Total int
}

// ShortfallError reports that the filtered lots cannot cover the request.
// Inventory said there was enough, so this signals ledger/lot desync.
type ShortfallError struct {
	Requested int
	Available int
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("lots cover %d of requested %d", e.Available, e.Requested)
}

// NoLotsError reports that no lot was usable at all.
type NoLotsError struct {
	Requested int
}

func (e *NoLotsError) Error() string {
	return fmt.Sprintf("no available lots for requested %d", e.Requested)
}

// fifoSort orders batches by import date ascending with batch id as the
// deterministic tie-break.
func fifoSort(batches []domain.StockBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		if batches[i].ImportDate.Equal(batches[j].ImportDate) {
			return batches[i].ID < batches[j].ID
		}
		return batches[i].ImportDate.Before(batches[j].ImportDate)
	})
}

// lifoSort orders batches by import date descending, id descending.
func lifoSort(batches []domain.StockBatch) {
	sort.SliceStable(batches, func(i, j int) bool {
		if batches[i].ImportDate.Equal(batches[j].ImportDate) {
			return batches[i].ID > batches[j].ID
		}
		return batches[i].ImportDate.After(batches[j].ImportDate)
	})
}

// PlanReserve walks the usable lots oldest-first and plans quantity_out
// increments until the request is satisfied. Lots that are expired at now
// or fully consumed are skipped. If the usable lots cannot cover the
// request the plan is discarded entirely and a NoLotsError or
// ShortfallError is returned.
func PlanReserve(batches []domain.StockBatch, quantity int, now time.Time) (Plan, error) {
	if quantity <= 0 {
		return Plan{}, fmt.Errorf("reserve quantity must be positive, got %d", quantity)
	}

	usable := make([]domain.StockBatch, 0, len(batches))
	for _, b := range batches {
		if b.Remaining() > 0 && !b.IsExpired(now) {
			usable = append(usable, b)
		}
	}
	if len(usable) == 0 {
		return Plan{}, &NoLotsError{Requested: quantity}
	}
	fifoSort(usable)

	plan := Plan{}
	remaining := quantity
	for _, b := range usable {
		if remaining == 0 {
			break
		}
		take := b.Remaining()
		if take > remaining {
			take = remaining
		}
		plan.Steps = append(plan.Steps, Step{BatchID: b.ID, Quantity: take})
		plan.Total += take
		remaining -= take
	}

	if remaining > 0 {
		return Plan{}, &ShortfallError{Requested: quantity, Available: plan.Total}
	}
	return plan, nil
}

// PlanRelease walks the consumed lots newest-first and plans quantity_out
// decrements until the released quantity is satisfied. Callers must never
// release more than they reserved; if the consumed lots cannot absorb the
// release, that invariant was broken upstream and a ShortfallError is
// returned.
func PlanRelease(batches []domain.StockBatch, quantity int) (Plan, error) {
	if quantity <= 0 {
		return Plan{}, fmt.Errorf("release quantity must be positive, got %d", quantity)
	}

	consumed := make([]domain.StockBatch, 0, len(batches))
	for _, b := range batches {
		if b.QuantityOut > 0 {
			consumed = append(consumed, b)
		}
	}
	lifoSort(consumed)

	plan := Plan{}
	remaining := quantity
	for _, b := range consumed {
		if remaining == 0 {
			break
		}
		give := b.QuantityOut
		if give > remaining {
			give = remaining
		}
		plan.Steps = append(plan.Steps, Step{BatchID: b.ID, Quantity: give})
		plan.Total += give
		remaining -= give
	}

	if remaining > 0 {
		return Plan{}, &ShortfallError{Requested: quantity, Available: plan.Total}
	}
	return plan, nil
}
