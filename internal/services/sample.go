package services

import (
	"math/rand/v2"
	"slices"

	"ecommerce-dashboard/internal/models"
)

// Sample draws min(n, sel.Len()) distinct records at random. The chosen
// records are returned in dataset order.
func Sample(sel Selection, n int, rng *rand.Rand) []models.Record {
	total := sel.Len()
	k := min(n, total)
	if k <= 0 {
		return []models.Record{}
	}
	if k == total {
		return sel.Records()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	// partial Fisher-Yates over positions
	positions := make([]int, total)
	for i := range positions {
		positions[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(total-i)
		positions[i], positions[j] = positions[j], positions[i]
	}
	chosen := positions[:k]
	slices.Sort(chosen)

	out := make([]models.Record, k)
	for i, p := range chosen {
		out[i] = *sel.at(p)
	}
	return out
}
