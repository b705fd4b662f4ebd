package storage

import (
	"github.com/papercomputeco/switchboard/pkg/calllog"
)

// RecentLimit is the number of records Stats reports as recent.
const RecentLimit = 10

// Stats is a summary of stored call records.
type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	ByFamily map[string]int `json:"by_family"`
	ByModel  map[string]int `json:"by_model"`

	// Averages in milliseconds over the records that carry the metric.
	AvgTTFTMs    *float64 `json:"avg_ttft_ms,omitempty"`
	AvgTPOTMs    *float64 `json:"avg_tpot_ms,omitempty"`
	AvgLatencyMs *float64 `json:"avg_total_latency_ms,omitempty"`

	Recent []*calllog.Record `json:"recent"`
}

// NewStats returns an empty summary.
func NewStats() *Stats {
	return &Stats{
		ByStatus: map[string]int{},
		ByFamily: map[string]int{},
		ByModel:  map[string]int{},
		Recent:   []*calllog.Record{},
	}
}

// Summarize computes Stats over records, which must be ordered newest
// first.
func Summarize(records []*calllog.Record) *Stats {
	s := NewStats()
	var ttft, tpot, latency mean

	for _, rec := range records {
		s.Total++
		s.ByStatus[string(rec.Status)]++
		if rec.Family != "" {
			s.ByFamily[string(rec.Family)]++
		}
		if rec.Model != "" {
			s.ByModel[rec.Model]++
		}
		ttft.add(rec.TTFT())
		tpot.add(rec.TPOT())
		latency.add(rec.Latency())
	}

	s.AvgTTFTMs = ttft.value()
	s.AvgTPOTMs = tpot.value()
	s.AvgLatencyMs = latency.value()

	if len(records) > RecentLimit {
		records = records[:RecentLimit]
	}
	s.Recent = append(s.Recent, records...)
	return s
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.n++
}

func (m *mean) value() *float64 {
	if m.n == 0 {
		return nil
	}
	v := m.sum / float64(m.n)
	return &v
}
