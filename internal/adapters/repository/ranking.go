package repository

import (
	"math"
	"math/rand/v2"
)

// ranking is an in-memory order-statistics treap over the scored ratings of
// one cycle.
//
// Ordering: score DESC, then employeeID ASC (deterministic). "less" means
// ranks earlier, so in-order traversal yields the ranking from best to worst.

// scoreScale converts scores to fixed point so equal scores compare equal.
const scoreScale = 1_000_000

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	if math.IsNaN(x) {
		return 0
	}
	return scoreFP(math.Round(x * scoreScale))
}

func toFloat(x scoreFP) float64 { return float64(x) / scoreScale }

// rankKey is what the tree orders by.
type rankKey struct {
	score      scoreFP
	employeeID string
}

// rankRecord is what the index stores per rating.
type rankRecord struct {
	key  rankKey
	name string
}

type node struct {
	ratingID string
	key      rankKey
	prio     uint64
	left     *node
	right    *node
	size     int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if a should appear before b in the ranking.
func less(a, b rankKey) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return a.employeeID < b.employeeID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, key rankKey) *node {
	if n == nil {
		return &node{ratingID: id, key: key, prio: rand.Uint64(), size: 1}
	}
	if less(key, n.key) {
		n.left = insert(n.left, id, key)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, key)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, key rankKey) *node {
	if n == nil {
		return nil
	}
	if n.ratingID == id && n.key == key {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, key)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, key)
		}
	} else if less(key, n.key) {
		n.left = deleteNode(n.left, id, key)
	} else {
		n.right = deleteNode(n.right, id, key)
	}
	fix(n)
	return n
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, byID map[string]rankRecord, out *[]Ranked) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, byID, out)
	if len(*out) < limit {
		rec := byID[n.ratingID]
		*out = append(*out, Ranked{
			RatingID:     n.ratingID,
			EmployeeID:   rec.key.employeeID,
			EmployeeName: rec.name,
			Score:        toFloat(rec.key.score),
		})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, byID, out)
	}
}

type ranking struct {
	root *node
	byID map[string]rankRecord
}

func newRanking() *ranking {
	return &ranking{byID: make(map[string]rankRecord)}
}

// put indexes r by its effective score, or drops it when it has none.
func (k *ranking) put(ratingID, employeeID, name string, score *float64) {
	k.remove(ratingID)
	if score == nil {
		return
	}
	key := rankKey{score: toFixedPoint(*score), employeeID: employeeID}
	k.byID[ratingID] = rankRecord{key: key, name: name}
	k.root = insert(k.root, ratingID, key)
}

func (k *ranking) remove(ratingID string) {
	if old, ok := k.byID[ratingID]; ok {
		k.root = deleteNode(k.root, ratingID, old.key)
		delete(k.byID, ratingID)
	}
}

func (k *ranking) top(n int) []Ranked {
	out := make([]Ranked, 0, min(n, len(k.byID)))
	collectTopN(k.root, n, k.byID, &out)
	rankEntries(out)
	return out
}

func (k *ranking) count() int { return nsize(k.root) }
