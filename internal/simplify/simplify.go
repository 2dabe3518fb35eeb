// Package simplify reduces net balances to a short list of suggested transfers.
package simplify

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Epsilon is the smallest magnitude that still counts as owed. Anything
// strictly below it is residue.
var Epsilon = decimal.New(1, -2)

// Balance is one user's signed net position. Positive = owed money.
type Balance struct {
	UserID string          `json:"user_id"`
	Net    decimal.Decimal `json:"net"`
}

// Edge is a pairwise obligation: From owes To Amount.
type Edge struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// Transfer is a suggested payment From -> To.
type Transfer struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type party struct {
	id        string
	remaining decimal.Decimal // always positive
}

// Simplify matches the largest creditor with the largest debtor until every
// remaining magnitude is below Epsilon. Duplicate user ids are summed.
// Output is deterministic for a given input set.
func Simplify(balances []Balance) []Transfer {
	net := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		net[b.UserID] = net[b.UserID].Add(b.Net)
	}

	var creditors, debtors []party
	for id, amt := range net {
		switch {
		case amt.GreaterThanOrEqual(Epsilon):
			creditors = append(creditors, party{id: id, remaining: amt})
		case amt.LessThanOrEqual(Epsilon.Neg()):
			debtors = append(debtors, party{id: id, remaining: amt.Neg()})
		}
	}
	sortParties(creditors)
	sortParties(debtors)

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		d, c := &debtors[i], &creditors[j]

		amount := decimal.Min(d.remaining, c.remaining)
		transfers = append(transfers, Transfer{From: d.id, To: c.id, Amount: amount})

		d.remaining = d.remaining.Sub(amount)
		c.remaining = c.remaining.Sub(amount)

		if d.remaining.LessThan(Epsilon) {
			i++
		}
		if c.remaining.LessThan(Epsilon) {
			j++
		}
	}
	return transfers
}

// SimplifyEdges nets pairwise edges into balances and simplifies them.
func SimplifyEdges(edges []Edge) []Transfer {
	return Simplify(NetBalances(edges))
}

// NetBalances converts edges into per-user balances, sorted by user id.
func NetBalances(edges []Edge) []Balance {
	net := make(map[string]decimal.Decimal)
	for _, e := range edges {
		net[e.From] = net[e.From].Sub(e.Amount)
		net[e.To] = net[e.To].Add(e.Amount)
	}
	out := make([]Balance, 0, len(net))
	for id, amt := range net {
		out = append(out, Balance{UserID: id, Net: amt})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UserID < out[b].UserID })
	return out
}

// sortParties orders by remaining amount descending, then user id.
func sortParties(ps []party) {
	sort.Slice(ps, func(a, b int) bool {
		if c := ps[a].remaining.Cmp(ps[b].remaining); c != 0 {
			return c > 0
		}
		return ps[a].id < ps[b].id
	})
}
