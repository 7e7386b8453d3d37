package role

import (
	"math/rand"

	"github.com/srediag/shm-bbuf/pkg/flow"
)

// Generator draws produced values uniformly from [0, flow.MaxValue]. The same
// seed always yields the same sequence.
type Generator struct {
	r *rand.Rand
}

// NewGenerator returns a Generator seeded with seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{r: rand.New(rand.NewSource(seed))}
}

// Next returns the next value.
func (g *Generator) Next() int32 {
	return int32(g.r.Intn(flow.MaxValue + 1))
}
