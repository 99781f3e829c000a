package engine

// Combine reduces condition series to a single signal by logical AND.
func Combine(conditions [][]bool) ([]bool, error) {
	if len(conditions) == 0 {
		return nil, newError(KindConfiguration, "empty condition list")
	}
	n := len(conditions[0])
	signal := make([]bool, n)
	for i := range signal {
		signal[i] = true
	}
	for c, cond := range conditions {
		if len(cond) != n {
			return nil, newError(KindConfiguration, "condition %d has length %d, want %d", c, len(cond), n)
		}
		for i, v := range cond {
			signal[i] = signal[i] && v
		}
	}
	return signal, nil
}
