package routeopt

import (
	"context"
	"math/rand"

	"github.com/ridrisa/barq-fleet-optimization-api-sub006/domain"
)

// geneticOptimize runs the spec §4.4 GA over permutations of order units:
// population pop, gens generations, fitness = 1/(1+totalDistance),
// elitism + tournament-3 selection, order-crossover (OX), swap mutation.
// Cooperative cancellation: checked once per generation (spec §5).
func geneticOptimize(ctx context.Context, start domain.LatLng, units []orderUnit, p GeneticParams) []orderUnit {
	n := len(units)
	if n <= 2 {
		return units
	}

	rng := rand.New(rand.NewSource(p.Seed))
	pop := make([][]int, p.Population)
	for i := range pop {
		pop[i] = rng.Perm(n)
	}

	fitness := func(perm []int) float64 {
		return 1.0 / (1.0 + routeDistance(start, perm, units))
	}

	best := append([]int(nil), pop[0]...)
	bestFitness := fitness(best)

	for gen := 0; gen < p.Generations; gen++ {
		select {
		case <-ctx.Done():
			return permToUnits(best, units)
		default:
		}

		scored := make([]float64, len(pop))
		for i, perm := range pop {
			f := fitness(perm)
			scored[i] = f
			if f > bestFitness {
				bestFitness = f
				best = append([]int(nil), perm...)
			}
		}

		next := make([][]int, 0, p.Population)
		next = append(next, elites(pop, scored, p.Elitism)...)

		for len(next) < p.Population {
			parent1 := tournamentSelect(rng, pop, scored, 3)
			parent2 := tournamentSelect(rng, pop, scored, 3)
			var child []int
			if rng.Float64() < p.Crossover {
				child = orderCrossover(rng, parent1, parent2)
			} else {
				child = append([]int(nil), parent1...)
			}
			if rng.Float64() < p.Mutation {
				swapMutate(rng, child)
			}
			next = append(next, child)
		}
		pop = next
	}

	return permToUnits(best, units)
}

func routeDistance(start domain.LatLng, perm []int, units []orderUnit) float64 {
	total := 0.0
	current := start
	for _, idx := range perm {
		u := units[idx]
		total += haversine(current, u.pickup.Location)
		total += u.distance
		current = u.delivery.Location
	}
	return total
}

func permToUnits(perm []int, units []orderUnit) []orderUnit {
	out := make([]orderUnit, len(perm))
	for i, idx := range perm {
		out[i] = units[idx]
	}
	return out
}

func elites(pop [][]int, scored []float64, k int) [][]int {
	if k > len(pop) {
		k = len(pop)
	}
	idx := make([]int, len(pop))
	for i := range idx {
		idx[i] = i
	}
	for i := 0; i < k; i++ {
		maxJ := i
		for j := i + 1; j < len(idx); j++ {
			if scored[idx[j]] > scored[idx[maxJ]] {
				maxJ = j
			}
		}
		idx[i], idx[maxJ] = idx[maxJ], idx[i]
	}
	out := make([][]int, k)
	for i := 0; i < k; i++ {
		out[i] = append([]int(nil), pop[idx[i]]...)
	}
	return out
}

func tournamentSelect(rng *rand.Rand, pop [][]int, scored []float64, k int) []int {
	bestIdx := rng.Intn(len(pop))
	for i := 1; i < k; i++ {
		j := rng.Intn(len(pop))
		if scored[j] > scored[bestIdx] {
			bestIdx = j
		}
	}
	return pop[bestIdx]
}

// orderCrossover implements OX: copy a random slice from parent1 verbatim,
// fill the rest from parent2 in its relative order, skipping duplicates.
func orderCrossover(rng *rand.Rand, parent1, parent2 []int) []int {
	n := len(parent1)
	a, b := rng.Intn(n), rng.Intn(n)
	if a > b {
		a, b = b, a
	}
	child := make([]int, n)
	filled := make([]bool, n)
	taken := make(map[int]bool, n)
	for i := a; i <= b; i++ {
		child[i] = parent1[i]
		filled[i] = true
		taken[parent1[i]] = true
	}

	pos := (b + 1) % n
	for i := 0; i < n; i++ {
		gene := parent2[(b+1+i)%n]
		if taken[gene] {
			continue
		}
		child[pos] = gene
		filled[pos] = true
		taken[gene] = true
		pos = (pos + 1) % n
	}
	_ = filled
	return child
}

func swapMutate(rng *rand.Rand, perm []int) {
	if len(perm) < 2 {
		return
	}
	i, j := rng.Intn(len(perm)), rng.Intn(len(perm))
	perm[i], perm[j] = perm[j], perm[i]
}
