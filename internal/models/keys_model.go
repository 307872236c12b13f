package models

import "time"

// ApiKey authenticates an operator for the admin API. Actor is recorded in
// the ledger for every action taken with the key.
type ApiKey struct {
	ID        string    `db:"id" json:"id"`
	Actor     string    `db:"actor" json:"actor"`
	ApiKey    string    `db:"api_key" json:"api_key"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
