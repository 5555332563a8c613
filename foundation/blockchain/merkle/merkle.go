// Package merkle computes the merkle root of the transactions of a block
// and the proofs that a transaction is part of it.
package merkle

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoLeaves is returned when a proof is requested for an empty tree.
var ErrNoLeaves = errors.New("cannot construct tree with no content")

// Root returns the merkle root of the leaves. A level with an odd number
// of nodes pairs its last node with itself. The root of no leaves is the
// zero hash.
func Root(leaves []common.Hash) common.Hash {
	if len(leaves) == 0 {
		return common.Hash{}
	}

	level := append([]common.Hash(nil), leaves...)
	for len(level) > 1 {
		level = nextLevel(level)
	}

	return level[0]
}

// Order records on which side a proof hash is concatenated.
type Order uint8

// Set of proof orders.
const (
	Left  Order = iota // proof hash comes first.
	Right              // proof hash comes second.
)

// Proof returns the hashes needed to recompute the root from the leaf at
// the index, walking from the leaf up to the root.
//
// For the leaf L with proof [P1, P2] and order [Right, Left]:
//
//	h1 = hash(L, P1)
//	root = hash(P2, h1)
func Proof(leaves []common.Hash, index int) ([]common.Hash, []Order, error) {
	if len(leaves) == 0 {
		return nil, nil, ErrNoLeaves
	}
	if index < 0 || index >= len(leaves) {
		return nil, nil, errors.New("leaf index out of range")
	}

	var proof []common.Hash
	var order []Order

	level := append([]common.Hash(nil), leaves...)
	for len(level) > 1 {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index
		}

		proof = append(proof, level[sibling])
		switch index%2 == 0 {
		case true:
			order = append(order, Right)
		default:
			order = append(order, Left)
		}

		level = nextLevel(level)
		index /= 2
	}

	return proof, order, nil
}

// VerifyProof reports whether the proof links the leaf to the root.
func VerifyProof(root common.Hash, leaf common.Hash, proof []common.Hash, order []Order) bool {
	if len(proof) != len(order) {
		return false
	}

	h := leaf
	for i, p := range proof {
		switch order[i] {
		case Right:
			h = hashPair(h, p)
		default:
			h = hashPair(p, h)
		}
	}

	return h == root
}

func nextLevel(level []common.Hash) []common.Hash {
	next := make([]common.Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		right := level[i]
		if i+1 < len(level) {
			right = level[i+1]
		}
		next = append(next, hashPair(level[i], right))
	}
	return next
}

func hashPair(left, right common.Hash) common.Hash {
	return crypto.Keccak256Hash(left.Bytes(), right.Bytes())
}
