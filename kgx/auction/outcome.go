package auction

// RejectReason explains why a bid was not accepted. Rejections are expected,
// user-facing outcomes and are never treated as failures.
type RejectReason int

const (
	// RejectNone is the zero value; an accepted bid carries no reason.
	RejectNone RejectReason = iota
	// RejectNoActiveAuction means the channel has no live auction.
	RejectNoActiveAuction
	// RejectByOwner means the lister tried to bid on their own auction.
	RejectByOwner
	// RejectBelowStartPrice means the first bid was below the start price.
	RejectBelowStartPrice
	// RejectNotAboveLast means the bid did not exceed the current last bid.
	RejectNotAboveLast
	// RejectSameBidder means the current highest bidder tried to raise
	// their own bid without triggering the instant-win price.
	RejectSameBidder
)

func (r RejectReason) String() string {
	switch r {
	case RejectNoActiveAuction:
		return "no_active_auction"
	case RejectByOwner:
		return "by_owner"
	case RejectBelowStartPrice:
		return "below_start_price"
	case RejectNotAboveLast:
		return "not_above_last"
	case RejectSameBidder:
		return "same_bidder"
	default:
		return "none"
	}
}

// BidOutcome is the result of a single bid submission.
type BidOutcome struct {
	Accepted bool
	// EndsAuction is set when the accepted bid met the instant-win price.
	EndsAuction bool
	// Reason is set when Accepted is false.
	Reason RejectReason
}
