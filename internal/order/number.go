package order

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"
)

// NumberGenerator produces order numbers of the form
// ORDER-<unix millis><4-digit sequence><2 random digits>. Every part is
// fixed width, so two numbers from one generator differ unless 10000 are
// issued within the same millisecond. The random tail separates processes;
// the unique index on orders.order_number catches the rest.
type NumberGenerator struct {
	seq atomic.Uint32
	now func() time.Time
}

func NewNumberGenerator() *NumberGenerator {
	return &NumberGenerator{now: time.Now}
}

func (g *NumberGenerator) Next() string {
	seq := g.seq.Add(1) % 10000

	n, err := rand.Int(rand.Reader, big.NewInt(100))
	if err != nil {
		n = big.NewInt(time.Now().UnixNano() % 100)
	}

	return fmt.Sprintf("ORDER-%d%04d%02d", g.now().UTC().UnixMilli(), seq, n.Int64())
}
