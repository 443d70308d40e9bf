package indicator

// ema uses the standard 2/(p+1) smoothing, seeded with the SMA of the first p inputs.
type ema struct {
	period int
	k      float64

	count int
	sum   float64

	value float64
	ready bool
}

func newEMA(period int) *ema {
	return &ema{period: period, k: 2.0 / float64(period+1)}
}

func (e *ema) push(x float64) {
	if !e.ready {
		e.count++
		e.sum += x
		if e.count == e.period {
			e.value = e.sum / float64(e.period)
			e.ready = true
		}
		return
	}
	e.value = (x-e.value)*e.k + e.value
}

// macd = EMA(fast) - EMA(slow); signal = EMA(signal) of the macd line.
type macd struct {
	fast   *ema
	slow   *ema
	signal *ema

	line  float64
	ready bool
}

func newMACD(fast, slow, signal int) *macd {
	return &macd{fast: newEMA(fast), slow: newEMA(slow), signal: newEMA(signal)}
}

func (m *macd) push(price float64) {
	m.fast.push(price)
	m.slow.push(price)
	if !m.fast.ready || !m.slow.ready {
		return
	}
	m.line = m.fast.value - m.slow.value
	m.ready = true
	m.signal.push(m.line)
}
