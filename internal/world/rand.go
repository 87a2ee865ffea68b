package world

import "math/rand"

// rng is the world RNG. Game logic rolls through here so tests can seed it
// for reproducible outcomes. Game loop goroutine only.
var rng = rand.New(rand.NewSource(1))

// SeedRand reseeds the world RNG.
func SeedRand(seed int64) {
	rng = rand.New(rand.NewSource(seed))
}

// RandInt returns a uniform int in [0, n). n <= 0 returns 0.
func RandInt(n int) int {
	if n <= 0 {
		return 0
	}
	return rng.Intn(n)
}

// RollDice rolls count dice with the given number of sides and returns the sum.
func RollDice(count, sides int) int {
	total := 0
	for i := 0; i < count; i++ {
		total += RandInt(sides) + 1
	}
	return total
}
