package core

import (
	"sort"

	"vialcore/pkg/domain"
)

// openPermitted is the QC gate consulted before a vial leaves sealed state.
// Returns nil when the transition may proceed; force bypasses the gate (the
// caller records the override and the lot's actual status in the audit note).
func openPermitted(lot Lot, force bool) error {
	if lot.QCStatus == QCApproved || force {
		return nil
	}
	return domain.QCNotApprovedError{LotID: lot.ID, Status: lot.QCStatus}
}

// isActiveLot is the soft-delete filter applied to every occupancy and stock
// calculation: vials of archived lots do not own slots or count as stock.
func isActiveLot(lot Lot) bool { return lot.Active() }

// LotStock pairs a lot with its remaining sealed stock.
type LotStock struct {
	Lot         Lot
	SealedCount int
}

// FEFOWarning flags a newer lot holding sealed stock while an older lot of
// the same reagent is not yet exhausted. First-expired-first-out guidance is
// advisory; nothing in the state machine enforces it.
type FEFOWarning struct {
	ReagentID  string
	UseFirst   string // lot ID that expires first and still has stock
	HeldBack   string // newer lot that should wait
	UseFirstBy string // lot number of the lot to use first
}

// fefoAdvisory computes per-lot sealed stock for one reagent, ordered by
// expiration ascending, plus warnings for every newer lot with stock while
// the oldest stocked lot is not exhausted.
func fefoAdvisory(view TransactionView, reagentID string) ([]LotStock, []FEFOWarning) {
	var stocks []LotStock
	for _, lot := range view.ListLots() {
		if lot.ReagentID != reagentID || !isActiveLot(lot) {
			continue
		}
		sealed := 0
		for _, vial := range view.ListLotVials(lot.ID) {
			if vial.Status == VialSealed {
				sealed++
			}
		}
		stocks = append(stocks, LotStock{Lot: lot, SealedCount: sealed})
	}
	sort.Slice(stocks, func(i, j int) bool {
		if !stocks[i].Lot.ExpiresAt.Equal(stocks[j].Lot.ExpiresAt) {
			return stocks[i].Lot.ExpiresAt.Before(stocks[j].Lot.ExpiresAt)
		}
		return stocks[i].Lot.ID < stocks[j].Lot.ID
	})

	var warnings []FEFOWarning
	oldestStocked := -1
	for i, stock := range stocks {
		if stock.SealedCount > 0 {
			oldestStocked = i
			break
		}
	}
	if oldestStocked >= 0 {
		first := stocks[oldestStocked].Lot
		for _, stock := range stocks[oldestStocked+1:] {
			if stock.SealedCount == 0 {
				continue
			}
			warnings = append(warnings, FEFOWarning{
				ReagentID:  reagentID,
				UseFirst:   first.ID,
				HeldBack:   stock.Lot.ID,
				UseFirstBy: first.LotNumber,
			})
		}
	}
	return stocks, warnings
}
