package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

// SyncState records how far a cart line has travelled towards the cart backend.
type SyncState string

const (
	// SyncLocal marks a guest line that has never been sent to the backend.
	SyncLocal SyncState = "local"
	// SyncConfirmed marks a line whose full quantity the backend acknowledged.
	SyncConfirmed SyncState = "confirmed"
	// SyncPendingAdd marks a line with quantity the backend has not acknowledged.
	SyncPendingAdd SyncState = "pending_add"
)

// CartLine is one entry of a cart snapshot.
type CartLine struct {
	ProductID   string          `json:"product_id"`
	ServerRowID string          `json:"server_row_id,omitempty"`
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ImageRef    string          `json:"image,omitempty"`
	Quantity    int             `json:"quantity"`
	SyncState   SyncState       `json:"sync_state,omitempty"`

	// PendingQuantity is the part of Quantity still waiting for a remote add.
	PendingQuantity int `json:"pending_quantity,omitempty"`

	// MergedRowIDs are further backend rows of the same product folded into
	// this line.
	MergedRowIDs []string `json:"merged_row_ids,omitempty"`
}

// RowIDs returns every backend row backing the line.
func (l CartLine) RowIDs() []string {
	var ids []string
	if l.ServerRowID != "" {
		ids = append(ids, l.ServerRowID)
	}
	return append(ids, l.MergedRowIDs...)
}

// LineTotal returns UnitPrice × Quantity.
func (l CartLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Summary is the presentation state derived from a snapshot.
type Summary struct {
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// Snapshot is the ordered list of lines of one cart scope. At most one line
// exists per product ID.
type Snapshot struct {
	Lines []CartLine `json:"lines"`
}

// Find returns the index of the line for productID, or -1.
func (s *Snapshot) Find(productID string) int {
	for i := range s.Lines {
		if s.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Line returns a copy of the line for productID.
func (s *Snapshot) Line(productID string) (CartLine, bool) {
	if i := s.Find(productID); i >= 0 {
		return s.Lines[i], true
	}
	return CartLine{}, false
}

// Add merges line into the snapshot: an existing line for the same product
// has its quantity increased, otherwise line is appended. It returns the
// resulting line.
func (s *Snapshot) Add(line CartLine) CartLine {
	i := s.Find(line.ProductID)
	if i < 0 {
		s.Lines = append(s.Lines, line)
		return line
	}

	existing := &s.Lines[i]
	existing.Quantity += line.Quantity
	existing.PendingQuantity += line.PendingQuantity
	for _, id := range line.RowIDs() {
		switch {
		case existing.ServerRowID == "":
			existing.ServerRowID = id
		case id != existing.ServerRowID && !slices.Contains(existing.MergedRowIDs, id):
			existing.MergedRowIDs = append(slices.Clip(existing.MergedRowIDs), id)
		}
	}
	if line.Name != "" {
		existing.Name = line.Name
	}
	if line.ImageRef != "" {
		existing.ImageRef = line.ImageRef
	}
	existing.UnitPrice = line.UnitPrice
	existing.SyncState = mergeState(existing.SyncState, line.SyncState)
	return *existing
}

// mergeState keeps a pending add visible until every quantity is confirmed.
func mergeState(current, incoming SyncState) SyncState {
	if current == SyncPendingAdd || incoming == SyncPendingAdd {
		return SyncPendingAdd
	}
	if incoming == "" {
		return current
	}
	return incoming
}

// Remove deletes the line for productID and returns it.
func (s *Snapshot) Remove(productID string) (CartLine, bool) {
	i := s.Find(productID)
	if i < 0 {
		return CartLine{}, false
	}
	line := s.Lines[i]
	s.Lines = append(s.Lines[:i:i], s.Lines[i+1:]...)
	return line, true
}

// SetQuantity replaces the quantity of the line for productID.
func (s *Snapshot) SetQuantity(productID string, quantity int) bool {
	i := s.Find(productID)
	if i < 0 {
		return false
	}
	s.Lines[i].Quantity = quantity
	if s.Lines[i].PendingQuantity > quantity {
		s.Lines[i].PendingQuantity = quantity
	}
	return true
}

// Pending returns the lines that still carry unconfirmed quantity.
func (s *Snapshot) Pending() []CartLine {
	var out []CartLine
	for _, l := range s.Lines {
		if l.SyncState == SyncPendingAdd && l.PendingQuantity > 0 {
			out = append(out, l)
		}
	}
	return out
}

// Summary computes the total price and item count.
func (s *Snapshot) Summary() Summary {
	total := decimal.Zero
	count := 0
	for _, l := range s.Lines {
		total = total.Add(l.LineTotal())
		count += l.Quantity
	}
	return Summary{Total: total, ItemCount: count}
}

// Len returns the number of distinct lines.
func (s *Snapshot) Len() int {
	return len(s.Lines)
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	lines := make([]CartLine, len(s.Lines))
	copy(lines, s.Lines)
	for i := range lines {
		lines[i].MergedRowIDs = slices.Clone(lines[i].MergedRowIDs)
	}
	return Snapshot{Lines: lines}
}
