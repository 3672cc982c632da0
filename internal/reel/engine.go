package reel

import (
	"math/rand"
	"sync"
	"time"
)

const (
	Rows      = 3
	Cols      = 5
	MiddleRow = 1
	MiddleCol = 2
)

// Grid is one spin outcome, rows top to bottom. Only the middle row pays;
// the outer rows are decoration.
type Grid [Rows][Cols]string

type Engine struct {
	cfg Config

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg: cfg,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (e *Engine) Config() Config { return e.cfg }

// Spin fills a grid from the weight table for the given mode. The special
// symbol only ever lands on the middle row; draws for the outer rows come
// from the table with the special excluded. A near-trigger is rerolled:
// three or more specials on the middle row must include the center cell,
// otherwise one of them is replaced so the grid does not read as a trigger.
func (e *Engine) Spin(bonus bool) Grid {
	table := e.cfg.Normal
	if bonus {
		table = e.cfg.Bonus
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var g Grid
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			g[r][c] = e.drawLocked(table, r == MiddleRow)
		}
	}
	e.fixNearTriggerLocked(&g, table)
	return g
}

func (e *Engine) drawLocked(table []SymbolWeight, allowSpecial bool) string {
	total := 0
	for _, sw := range table {
		if !allowSpecial && sw.Name == e.cfg.Special {
			continue
		}
		total += sw.Weight
	}
	n := e.rnd.Intn(total)
	for _, sw := range table {
		if !allowSpecial && sw.Name == e.cfg.Special {
			continue
		}
		if n < sw.Weight {
			return sw.Name
		}
		n -= sw.Weight
	}
	return table[len(table)-1].Name
}

func (e *Engine) fixNearTriggerLocked(g *Grid, table []SymbolWeight) {
	if g[MiddleRow][MiddleCol] == e.cfg.Special {
		return
	}
	specials := 0
	for c := 0; c < Cols; c++ {
		if g[MiddleRow][c] == e.cfg.Special {
			specials++
		}
	}
	for c := 0; specials >= 3 && c < Cols; c++ {
		if g[MiddleRow][c] == e.cfg.Special {
			g[MiddleRow][c] = e.drawLocked(table, false)
			specials--
		}
	}
}

// IsBonusTrigger reports whether the middle row carries at least three
// specials including the center cell.
func IsBonusTrigger(g Grid, special string) bool {
	if g[MiddleRow][MiddleCol] != special {
		return false
	}
	n := 0
	for c := 0; c < Cols; c++ {
		if g[MiddleRow][c] == special {
			n++
		}
	}
	return n >= 3
}

// Evaluate scores the middle row against the paytable: symbols are counted
// regardless of position, the richest kind with three or more occurrences
// pays bet times its multiplier. Specials never pay directly.
func Evaluate(g Grid, bet int64, cfg Config) int64 {
	counts := make(map[string]int, Cols)
	for c := 0; c < Cols; c++ {
		sym := g[MiddleRow][c]
		if sym == cfg.Special {
			continue
		}
		counts[sym]++
	}
	var best int64
	for sym, n := range counts {
		if n < 3 {
			continue
		}
		mult, ok := cfg.Paytable[sym][n]
		if !ok {
			continue
		}
		if p := bet * mult; p > best {
			best = p
		}
	}
	return best
}
