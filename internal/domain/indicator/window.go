package indicator

import "github.com/shopspring/decimal"

// window is a fixed-size ring buffer keeping a running sum of its contents.
// Decimal add/sub are exact, so the sum never drifts from the true sum.
type window struct {
	buf  []decimal.Decimal
	next int
	n    int
	sum  decimal.Decimal
}

func newWindow(size int) *window {
	return &window{buf: make([]decimal.Decimal, size)}
}

func (w *window) push(v decimal.Decimal) {
	if w.n == len(w.buf) {
		w.sum = w.sum.Sub(w.buf[w.next])
	} else {
		w.n++
	}
	w.buf[w.next] = v
	w.sum = w.sum.Add(v)
	w.next = (w.next + 1) % len(w.buf)
}

func (w *window) len() int { return w.n }

func (w *window) full() bool { return w.n == len(w.buf) }

// mean is invalid until the window has filled once.
func (w *window) mean() decimal.NullDecimal {
	if !w.full() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: w.sum.Div(decimal.NewFromInt(int64(len(w.buf)))), Valid: true}
}
