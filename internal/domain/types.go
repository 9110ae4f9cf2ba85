package domain

// Community is a group of users who share bills. Members join with the
// community's invite code.
type Community struct {
	ID         string
	Name       string
	OwnerID    string
	InviteCode string
	CreatedAt  int64 // epoch millis
}

// Member is one user's membership in a community.
type Member struct {
	CommunityID string
	UID         string
	JoinedAt    int64
}

// Bill is one receipt's worth of items plus splitting metadata. Amounts are
// stored in GBP; the per-bill exchange rate converts to CNY for display.
type Bill struct {
	ID                   string
	CommunityID          string
	CreatedBy            string
	CreatedAt            int64
	BillName             string
	Currency             string // fixed to "GBP"
	ExchangeRateGBPToCNY float64
	Participants         []string
	Total                float64
	StoragePath          string
}

// Item is a single priced entry on a bill. A nil ClaimedBy means the item is
// shared among all bill participants; otherwise it is owed exclusively by the
// claimer.
type Item struct {
	ID        string
	BillID    string
	Name      string
	Price     float64
	ClaimedBy *string
}

// Claimed reports whether the item is privately claimed.
func (i *Item) Claimed() bool {
	return i.ClaimedBy != nil
}
