package metrics

import (
	"fmt"
	"strings"
)

// Snapshot gathers the package registry and returns, per metric family
// (without namespace/subsystem prefix), the sum of all counter and gauge
// samples. Histograms report their sample count.
func Snapshot() (map[string]float64, error) {
	families, err := customRegistry.Gather()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGather, err)
	}
	prefix := globalManager.namespace + "_" + globalManager.subsystem + "_"
	out := make(map[string]float64, len(families))
	for _, mf := range families {
		name := strings.TrimPrefix(mf.GetName(), prefix)
		var sum float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				sum += float64(m.GetHistogram().GetSampleCount())
			}
		}
		out[name] = sum
	}
	return out, nil
}
