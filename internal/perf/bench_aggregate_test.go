package perf

import (
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bulog/serapan/internal/fingerprint"
	"github.com/bulog/serapan/internal/procurement"
)

var commodities = []string{"BERAS MEDIUM", "BERAS PREMIUM", "GABAH KERING GILING", "GABAH KERING PANEN", "JAGUNG"}

// records builds n receipts spread over every registered region and the first
// fourteen days of March 2025.
func records(n int) []procurement.TransactionRecord {
	regions := append(append([]procurement.Region(nil), procurement.SentraProduksi...), procurement.Lainnya...)
	out := make([]procurement.TransactionRecord, n)
	for i := range out {
		region := regions[i%len(regions)]
		day := procurement.NewDate(2025, time.March, 1+i%14)
		out[i] = procurement.TransactionRecord{
			Kanwil:            fmt.Sprintf("%02d - %s", i%len(regions)+1, region.Label()),
			Kancab:            fmt.Sprintf("Kancab %s %d", region.Name, i%4),
			NomorPO:           procurement.StringPtr(fmt.Sprintf("PO-%06d", i)),
			NoInOut:           procurement.StringPtr(fmt.Sprintf("IN-%06d", i)),
			TanggalPenerimaan: procurement.DatePtr(day),
			Komoditi:          procurement.StringPtr(commodities[i%len(commodities)]),
			QtyInOut:          procurement.DecimalPtr(decimal.NewFromInt(int64(1000 + i%9000))),
		}
	}
	return out
}

func regionTargets() []procurement.RegionTarget {
	regions := append(append([]procurement.Region(nil), procurement.SentraProduksi...), procurement.Lainnya...)
	out := make([]procurement.RegionTarget, len(regions))
	for i, region := range regions {
		out[i] = procurement.RegionTarget{Kanwil: region.Label(), Target: procurement.DecimalPtr(decimal.NewFromInt(5000))}
	}
	return out
}

func BenchmarkComputeEquivalent(b *testing.B) {
	rows := records(50_000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = procurement.ComputeEquivalent(rows)
	}
}

func BenchmarkRegionSummary(b *testing.B) {
	rows := records(50_000)
	targets := regionTargets()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = procurement.ComposeRegionSummary(rows, targets)
	}
}

func BenchmarkRecordFingerprint(b *testing.B) {
	rows := records(1_000)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = fingerprint.Record(rows[i%len(rows)])
	}
}

func TestRegionSummaryLatency(t *testing.T) {
	if testing.Short() {
		t.Skip("latency check skipped in short mode")
	}
	rows := records(100_000)
	targets := regionTargets()

	samples := make([]time.Duration, 0, 10)
	for i := 0; i < 10; i++ {
		start := time.Now()
		_ = procurement.ComposeRegionSummary(rows, targets)
		samples = append(samples, time.Since(start))
	}
	if p95 := percentile95(samples); p95 > 2*time.Second {
		t.Fatalf("region summary latency regression: p95=%s threshold=%s", p95, 2*time.Second)
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}
