package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reconnectedcc/kromer/internal/models"
)

func TestDefaultSubscriptions(t *testing.T) {
	subs := DefaultSubscriptions()
	_, hasOwnTx := subs[SubOwnTransactions]
	_, hasBlocks := subs[SubBlocks]
	assert.True(t, hasOwnTx)
	assert.True(t, hasBlocks)
	assert.Len(t, subs, 2)
}

func TestShouldSendTransactions(t *testing.T) {
	from := "kalice000"
	to := "kbob000000"
	tx := &models.Transaction{From: &from, To: to}
	event := Event{Transaction: tx}

	cases := []struct {
		name    string
		subs    map[SubscriptionKind]struct{}
		address string
		want    bool
	}{
		{"all subscriber sees any transaction", subs(SubTransactions), "kcarol0000", true},
		{"own subscriber sees as sender", subs(SubOwnTransactions), from, true},
		{"own subscriber sees as recipient", subs(SubOwnTransactions), to, true},
		{"own subscriber does not see others", subs(SubOwnTransactions), "kcarol0000", false},
		{"guest never matches own", subs(SubOwnTransactions), guestAddress, false},
		{"no subscription sees nothing", subs(), from, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, shouldSend(event, c.subs, c.address))
		})
	}
}

func TestShouldSendNames(t *testing.T) {
	owner := "kalice000"
	event := Event{Name: &models.Name{Owner: owner}}

	assert.True(t, shouldSend(event, subs(SubNames), "kbob000000"))
	assert.True(t, shouldSend(event, subs(SubOwnNames), owner))
	assert.False(t, shouldSend(event, subs(SubOwnNames), "kbob000000"))
	assert.False(t, shouldSend(event, subs(), owner))
}

func TestShouldSendBlocks(t *testing.T) {
	miner := "kalice000"
	event := Event{Block: &models.Block{Miner: miner}}

	assert.True(t, shouldSend(event, subs(SubBlocks), "kbob000000"))
	assert.True(t, shouldSend(event, subs(SubOwnBlocks), miner))
	assert.False(t, shouldSend(event, subs(SubOwnBlocks), "kbob000000"))
}

func subs(kinds ...SubscriptionKind) map[SubscriptionKind]struct{} {
	out := make(map[SubscriptionKind]struct{}, len(kinds))
	for _, k := range kinds {
		out[k] = struct{}{}
	}
	return out
}
