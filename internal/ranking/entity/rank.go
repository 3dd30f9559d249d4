package entity

// RankEntry is a derived view recomputed from the ledger aggregates,
// never persisted as a source of truth. Rank is 1 + the number of users
// with a strictly greater balance, so tied users share a rank while the
// display order stays total (balance descending, primary id ascending).
type RankEntry struct {
	UserID      string `db:"primary_id" json:"user_id"`
	DisplayName string `db:"display_name" json:"display_name"`
	Balance     int64  `db:"balance" json:"balance"`
	Rank        int64  `db:"rank" json:"rank"`
}
