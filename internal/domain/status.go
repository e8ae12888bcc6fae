package domain

// Status is the internal lifecycle state of an appointment row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusArrived   Status = "arrived"
	StatusCheckout  Status = "checkout"
	StatusNoShow    Status = "no_show"
	StatusCancelled Status = "cancelled"
	StatusDeleted   Status = "deleted"
)

// statusSymbols is the single source for both directions of the codec.
var statusSymbols = [...]struct {
	status Status
	symbol string
}{
	{StatusPending, "-"},
	{StatusConfirmed, "~"},
	{StatusArrived, "@"},
	{StatusCheckout, "^"},
	{StatusNoShow, "*"},
	{StatusCancelled, "?"},
	{StatusDeleted, "x"},
}

// Symbol returns the compact external symbol for s. Values outside the
// enum encode as the pending symbol.
func (s Status) Symbol() string {
	for _, e := range statusSymbols {
		if e.status == s {
			return e.symbol
		}
	}
	return statusSymbols[0].symbol
}

func (s Status) Valid() bool {
	for _, e := range statusSymbols {
		if e.status == s {
			return true
		}
	}
	return false
}

// Screened reports whether a row in this status occupies calendar time for
// conflict detection.
func (s Status) Screened() bool {
	return s != StatusCancelled && s != StatusDeleted
}

// ParseStatusSymbol decodes an external symbol. Unknown symbols decode to
// StatusPending.
func ParseStatusSymbol(symbol string) Status {
	for _, e := range statusSymbols {
		if e.symbol == symbol {
			return e.status
		}
	}
	return StatusPending
}
