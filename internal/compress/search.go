package compress

import (
	"errors"
	"math/rand"
	"sort"
)

// Tuning constants pinned by spec §4.4.
const (
	genomeSize        = 48
	genomeIterations  = 100
	fixedContextCount = 8
)

// pattern is one candidate context mask from the seed phase, with its
// measured 2-context compressed size.
type pattern struct {
	ctx  byte
	size int
}

// seedPatterns enumerates every odd 8-bit mask from 3 to 255 with at
// most 4 one-bits (spec §4.4 "Seed phase"; mask 1 is not included),
// compresses the payload with a fixed
// 2-context probe configuration for each, and returns them sorted
// ascending by resulting size.
func seedPatterns(coder *Coder, payload []byte, cap int) []pattern {
	var pats []pattern
	for i := 3; i < 256; i += 2 {
		if popcount(byte(i)) > 4 {
			continue
		}
		p := Params{ContextCount: 2}
		p.Weights[0], p.Contexts[0] = 8, byte(i)
		p.Weights[1], p.Contexts[1] = 1, 1
		res, err := coder.Compress(p, payload, cap, false)
		size := cap
		if err == nil || isRoundTripOnly(err) {
			size = len(res.Data)
		}
		pats = append(pats, pattern{ctx: byte(i), size: size})
	}
	sort.Slice(pats, func(i, j int) bool { return pats[i].size < pats[j].size })
	return pats
}

func isRoundTripOnly(err error) bool {
	_, ok := err.(*ErrRoundTripMismatch)
	return ok
}

func popcount(b byte) int {
	n := 0
	for b != 0 {
		n += int(b & 1)
		b >>= 1
	}
	return n
}

// genome is one candidate parameter set plus its measured fitness
// (compressed size — lower is better).
type genome struct {
	params  Params
	fitness int
}

// lessGenome implements the deterministic (fitness, weights, contexts)
// lexicographic tie-break spec §4.4 step 2 requires.
func lessGenome(a, b genome) bool {
	if a.fitness != b.fitness {
		return a.fitness < b.fitness
	}
	for i := 0; i < fixedContextCount; i++ {
		if a.params.Weights[i] != b.params.Weights[i] {
			return a.params.Weights[i] < b.params.Weights[i]
		}
		if a.params.Contexts[i] != b.params.Contexts[i] {
			return a.params.Contexts[i] < b.params.Contexts[i]
		}
	}
	return false
}

// Search runs the genetic-algorithm parameter search of spec §4.4 over
// payload, capped at maxOut bytes per trial compression, using rng for
// all randomness (determinism property: same payload + same rng seed
// sequence ⇒ bit-identical output). If initial.ContextCount != 0 it
// seeds genome 1 with those parameters, per spec.
func Search(coder *Coder, payload []byte, maxOut int, initial Params, rng *rand.Rand) (Params, Result) {
	seedPool := seedPatterns(coder, payload, maxOut)
	quartile := len(seedPool) / 4
	if quartile < 1 {
		quartile = 1
	}
	pool := seedPool[:quartile]

	g := make([]genome, genomeSize)
	for i := range g {
		g[i].params.ContextCount = fixedContextCount
		g[i].params.Contexts[0] = 1
		g[i].params.Weights[0] = 1
		for j := 1; j < fixedContextCount; j++ {
			ctx := pool[rng.Intn(len(pool))].ctx
			g[i].params.Weights[j] = byte(rng.Intn(MaxWeight) + 1)
			g[i].params.Contexts[j] = ctx
		}
	}
	if initial.ContextCount != 0 {
		g[1].params = initial
	}

	keep := genomeSize / 4
	for iter := 0; iter < genomeIterations; iter++ {
		for j := range g {
			res, err := coder.Compress(g[j].params, payload, maxOut, false)
			if err != nil && !isRoundTripOnly(err) {
				g[j].fitness = maxOut
				continue
			}
			g[j].fitness = len(res.Data)
		}
		sort.Slice(g, func(a, b int) bool { return lessGenome(g[a], g[b]) })

		// Crossover: pairs in [keep, genomeSize/2) step 2.
		for j := keep; j < genomeSize/2; j += 2 {
			m1 := rng.Intn(keep)
			m2 := rng.Intn(keep)
			for m2 == m1 {
				m2 = rng.Intn(keep)
			}
			cut := rng.Intn(2 * fixedContextCount)
			crossoverPair(&g[j], &g[j+1], g[m1].params, g[m2].params, cut)
		}

		// Dedup the first half: any genome identical to its predecessor
		// gets one random byte re-initialized. Draws from the full seed
		// pool, not the quartile used for initial genome seeding above.
		sort.Slice(g[:genomeSize/2], func(a, b int) bool { return lessGenome(g[a], g[b]) })
		for j := 1; j < genomeSize/2; j++ {
			if g[j].params.Weights == g[j-1].params.Weights && g[j].params.Contexts == g[j-1].params.Contexts {
				mutateOne(&g[j].params, seedPool, rng)
			}
		}

		// Fill the second half by cloning g[j % keep] and mutating, again
		// from the full seed pool.
		for j := genomeSize / 2; j < genomeSize; j++ {
			g[j].params = g[j%keep].params
			for k := 0; k < 3; k++ {
				mutateOne(&g[j].params, seedPool, rng)
			}
		}
	}

	sort.Slice(g, func(a, b int) bool { return lessGenome(g[a], g[b]) })
	best := g[0].params
	res, _ := coder.Compress(best, payload, maxOut, false)
	return best, res
}

// crossoverPair exchanges the suffix of the (weights ∥ contexts) vector
// past cut between two parents, writing the two children into dst1/dst2.
func crossoverPair(dst1, dst2 *genome, p1, p2 Params, cut int) {
	dst1.params.ContextCount = fixedContextCount
	dst2.params.ContextCount = fixedContextCount
	for k := 0; k < 2*fixedContextCount; k++ {
		idx := k % fixedContextCount
		isContext := k >= fixedContextCount
		src1, src2 := p1, p2
		if k >= cut {
			src1, src2 = p2, p1
		}
		if isContext {
			dst1.params.Contexts[idx] = src1.Contexts[idx]
			dst2.params.Contexts[idx] = src2.Contexts[idx]
		} else {
			dst1.params.Weights[idx] = src1.Weights[idx]
			dst2.params.Weights[idx] = src2.Weights[idx]
		}
	}
}

// MaxBruteForcePayload bounds BruteForceSearch: its cost is combinatorial
// in the pattern pool size, so it is only offered for small payloads.
const MaxBruteForcePayload = 512

// ErrPayloadTooLargeForBruteForce is returned by BruteForceSearch when
// len(payload) exceeds MaxBruteForcePayload.
var ErrPayloadTooLargeForBruteForce = errors.New("compress: payload too large for brute-force search")

// BruteForceSearch is the legacy exhaustive search from the original
// tool's Optimize: it fixes the first three context masks to the three
// smallest-popcount odd patterns, then exhaustively tries every
// remaining pattern as the fourth context alongside every combination
// of weights 4/8 for contexts 1–3 (weight 0 stays fixed at 1, context 0
// fixed at pats[0]), keeping whichever combination compresses smallest.
// It predates the genetic search (Search) and is not the default path;
// offered here as an opt-in legacy mode for payloads small enough that
// its combinatorial cost is affordable.
func BruteForceSearch(coder *Coder, payload []byte, maxOut int) (Params, Result, error) {
	if len(payload) > MaxBruteForcePayload {
		return Params{}, Result{}, ErrPayloadTooLargeForBruteForce
	}

	var pats []byte
	for i := 1; i < 256; i += 2 {
		if popcount(byte(i)) <= 3 {
			pats = append(pats, byte(i))
		}
	}
	if len(pats) < 4 {
		return Params{}, Result{}, errors.New("compress: not enough candidate patterns for brute-force search")
	}

	best := Params{ContextCount: 4}
	best.Weights[0], best.Contexts[0] = 1, pats[0]
	best.Weights[1], best.Contexts[1] = 4, pats[1]
	best.Weights[2], best.Contexts[2] = 4, pats[2]
	best.Weights[3], best.Contexts[3] = 4, pats[3]
	bestRes, err := coder.Compress(best, payload, maxOut, false)
	smallest := maxOut
	if err == nil || isRoundTripOnly(err) {
		smallest = len(bestRes.Data)
	}

	for l := 3; l < len(pats); l++ {
		for _, u := range [2]byte{4, 8} {
			for _, v := range [2]byte{4, 8} {
				for _, w := range [2]byte{4, 8} {
					p := Params{ContextCount: 4}
					p.Weights[0], p.Contexts[0] = 1, pats[0]
					p.Weights[1], p.Contexts[1] = u, pats[1]
					p.Weights[2], p.Contexts[2] = v, pats[2]
					p.Weights[3], p.Contexts[3] = w, pats[l]
					res, cerr := coder.Compress(p, payload, maxOut, false)
					if cerr != nil && !isRoundTripOnly(cerr) {
						continue
					}
					if len(res.Data) < smallest {
						smallest = len(res.Data)
						best = p
						bestRes = res
					}
				}
			}
		}
	}
	return best, bestRes, nil
}

// mutateOne substitutes one random weight-or-context byte of p: contexts
// are drawn from the seed pool, weights from [1, MaxWeight].
func mutateOne(p *Params, pool []pattern, rng *rand.Rand) {
	byteIdx := rng.Intn(2 * fixedContextCount)
	if byteIdx < fixedContextCount {
		p.Contexts[byteIdx] = pool[rng.Intn(len(pool))].ctx
	} else {
		p.Weights[byteIdx-fixedContextCount] = byte(rng.Intn(MaxWeight) + 1)
	}
}
