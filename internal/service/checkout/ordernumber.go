package checkout

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	orderNumberPrefix   = "ORD"
	orderNumberSuffixes = 1000
	orderNumberMsModulo = 1_000_000
)

// OrderNumberGenerator выдаёт номера вида ORD + 6 младших цифр unix-миллисекунд
// + трёхзначный суффикс. В пределах процесса пара (миллисекунда, суффикс) не
// повторяется: когда суффиксы миллисекунды исчерпаны, генератор ждёт следующую.
type OrderNumberGenerator struct {
	mu     sync.Mutex
	now    func() time.Time
	sleep  func(time.Duration)
	lastMs int64
	start  int
	issued int
}

// NewOrderNumberGenerator создаёт генератор на системных часах.
func NewOrderNumberGenerator() *OrderNumberGenerator {
	return newOrderNumberGenerator(time.Now, time.Sleep)
}

func newOrderNumberGenerator(now func() time.Time, sleep func(time.Duration)) *OrderNumberGenerator {
	return &OrderNumberGenerator{now: now, sleep: sleep, lastMs: -1}
}

// Next возвращает очередной номер заказа.
func (g *OrderNumberGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	for {
		ms := g.now().UnixMilli()
		// Часы могли отойти назад; продолжаем выдавать суффиксы последней миллисекунды.
		if ms < g.lastMs {
			ms = g.lastMs
		}
		if ms != g.lastMs {
			g.lastMs = ms
			g.start = rand.IntN(orderNumberSuffixes)
			g.issued = 0
		}
		if g.issued < orderNumberSuffixes {
			suffix := (g.start + g.issued) % orderNumberSuffixes
			g.issued++
			return fmt.Sprintf("%s%06d%03d", orderNumberPrefix, ms%orderNumberMsModulo, suffix)
		}
		g.sleep(time.Millisecond)
		if g.now().UnixMilli() <= g.lastMs {
			// Часы стоят: искусственно переходим к следующей миллисекунде.
			g.lastMs++
			g.start = rand.IntN(orderNumberSuffixes)
			g.issued = 1
			return fmt.Sprintf("%s%06d%03d", orderNumberPrefix, g.lastMs%orderNumberMsModulo, g.start)
		}
	}
}
