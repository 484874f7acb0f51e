package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// writeMetrics prints one line per series, histograms as count and sum.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if _, err := fmt.Fprintf(w, "%s%s %s\n", mf.GetName(), labels(m.GetLabel()), value(mf.GetType(), m)); err != nil {
				return err
			}
		}
	}

	return nil
}

func labels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}

	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("%s=%q", p.GetName(), p.GetValue())
	}

	return "{" + strings.Join(parts, ",") + "}"
}

func value(t dto.MetricType, m *dto.Metric) string {
	switch t {
	case dto.MetricType_COUNTER:
		return formatFloat(m.GetCounter().GetValue())
	case dto.MetricType_GAUGE:
		return formatFloat(m.GetGauge().GetValue())
	case dto.MetricType_HISTOGRAM:
		h := m.GetHistogram()
		return fmt.Sprintf("count=%d sum=%s", h.GetSampleCount(), formatFloat(h.GetSampleSum()))
	}

	return "?"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
