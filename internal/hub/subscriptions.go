package hub

// SubscriptionKind is one of the broadcast channels a WS session can opt
// into (spec.md §4.D).
type SubscriptionKind string

const (
	SubBlocks          SubscriptionKind = "blocks"
	SubOwnBlocks       SubscriptionKind = "ownBlocks"
	SubTransactions    SubscriptionKind = "transactions"
	SubOwnTransactions SubscriptionKind = "ownTransactions"
	SubNames           SubscriptionKind = "names"
	SubOwnNames        SubscriptionKind = "ownNames"
	SubMotd            SubscriptionKind = "motd"
)

// ValidSubscriptionLevels is the enum's full domain, returned verbatim by
// get_valid_subscription_levels (spec.md §4.E).
var ValidSubscriptionLevels = []SubscriptionKind{
	SubBlocks, SubOwnBlocks, SubTransactions, SubOwnTransactions, SubNames, SubOwnNames, SubMotd,
}

// DefaultSubscriptions is the set every connection starts with on accept
// (spec.md §4.D).
func DefaultSubscriptions() map[SubscriptionKind]struct{} {
	return map[SubscriptionKind]struct{}{
		SubOwnTransactions: {},
		SubBlocks:          {},
	}
}

const guestAddress = "guest"

// shouldSend implements the per-session filter table of spec.md §4.D.
func shouldSend(event Event, subs map[SubscriptionKind]struct{}, address string) bool {
	notGuest := address != guestAddress

	switch {
	case event.Transaction != nil:
		_, all := subs[SubTransactions]
		_, own := subs[SubOwnTransactions]
		t := event.Transaction
		isParty := notGuest && ((t.From != nil && *t.From == address) || t.To == address)
		return all || (isParty && own)

	case event.Name != nil:
		_, all := subs[SubNames]
		_, own := subs[SubOwnNames]
		isOwner := notGuest && event.Name.Owner == address
		return all || (isOwner && own)

	case event.Block != nil:
		_, all := subs[SubBlocks]
		_, own := subs[SubOwnBlocks]
		isMiner := notGuest && event.Block.Miner == address
		return all || (isMiner && own)
	}
	return false
}
