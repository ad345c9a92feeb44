// Package concurrency carries the transaction handle plumbed through index
// operations for future lock-manager integration.
package concurrency

import (
	"github.com/google/uuid"
)

// Each client has at most one transaction running at a given time, so the
// clientID uniquely identifies both the Transaction and its client.
type Transaction struct {
	clientID uuid.UUID
}

// NewTransaction constructs a Transaction with a fresh client id.
func NewTransaction() *Transaction {
	return &Transaction{clientID: uuid.New()}
}

func (t *Transaction) GetClientID() uuid.UUID {
	return t.clientID
}
