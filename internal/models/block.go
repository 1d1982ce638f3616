package models

import "time"

// Block is carried for protocol compatibility with the legacy Krist
// broadcast shape (spec.md §4.D filter table); mining is disabled in this
// implementation (submit_block is rejected, spec.md §4.E), so no component
// here ever produces one, but the hub's filter still recognizes the kind.
type Block struct {
	Number int64     `json:"number"`
	Hash   string    `json:"hash"`
	Miner  string    `json:"miner"`
	Time   time.Time `json:"time"`
}
