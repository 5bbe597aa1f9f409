package platform

// EMA is an exponential moving average. The zero value starts at 0, like
// the load cells at power-on.
type EMA struct {
	alpha float64
	last  float64
}

// NewEMA returns a filter giving weight alpha to each new value.
func NewEMA(alpha float64) EMA {
	return EMA{alpha: alpha}
}

// Update feeds v and returns the new average.
func (f *EMA) Update(v float64) float64 {
	f.last = f.alpha*v + (1-f.alpha)*f.last
	return f.last
}

// Last returns the current average.
func (f *EMA) Last() float64 {
	return f.last
}
