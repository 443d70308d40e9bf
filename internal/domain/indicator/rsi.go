package indicator

// wilderRSI keeps Wilder-smoothed average gain and loss. The first `period`
// deltas seed the averages with a simple mean; after that each delta folds in
// as avg = (avg*(n-1) + x) / n.
type wilderRSI struct {
	period int

	prev    float64
	hasPrev bool

	count   int
	sumGain float64
	sumLoss float64

	avgGain float64
	avgLoss float64
	ready   bool
}

func newWilderRSI(period int) *wilderRSI {
	return &wilderRSI{period: period}
}

func (r *wilderRSI) push(price float64) {
	if !r.hasPrev {
		r.prev = price
		r.hasPrev = true
		return
	}
	d := price - r.prev
	r.prev = price

	var gain, loss float64
	if d > 0 {
		gain = d
	} else {
		loss = -d
	}

	if !r.ready {
		r.count++
		r.sumGain += gain
		r.sumLoss += loss
		if r.count == r.period {
			n := float64(r.period)
			r.avgGain = r.sumGain / n
			r.avgLoss = r.sumLoss / n
			r.ready = true
		}
		return
	}

	n := float64(r.period)
	r.avgGain = (r.avgGain*(n-1) + gain) / n
	r.avgLoss = (r.avgLoss*(n-1) + loss) / n
}

// seed installs externally computed averages, e.g. when warm-starting from history.
func (r *wilderRSI) seed(avgGain, avgLoss, lastPrice float64) {
	r.avgGain = avgGain
	r.avgLoss = avgLoss
	r.prev = lastPrice
	r.hasPrev = true
	r.count = r.period
	r.ready = true
}

func (r *wilderRSI) value() float64 {
	return rsiFromAverages(r.avgGain, r.avgLoss)
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
