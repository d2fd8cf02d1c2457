package domain

// Listing is the slice of the external listing record the settlement core
// reads and mutates: ownership plus the two availability flags.
type Listing struct {
	ID        int64 `json:"id"`
	OwnerID   int64 `json:"owner_id"`
	Published bool  `json:"published"`
	Available bool  `json:"available"`
}

// IsTradable returns true if the listing can still be consumed by a trade.
func (l *Listing) IsTradable() bool {
	return l.Published && l.Available
}
