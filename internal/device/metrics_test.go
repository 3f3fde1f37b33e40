package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marselester/kperf/internal/pmutypes"
)

// TestPmuGetDevMetricDDRPerNuma mirrors spec.md's scenario 3: two ddrc
// devices on two numa nodes with raw counts 100, 100, 200, 200 collapse
// into exactly two rows, each 32x the raw sum for its numa.
func TestPmuGetDevMetricDDRPerNuma(t *testing.T) {
	rows := []pmutypes.Data{
		{Evt: "hisi_sccl1_ddrc0/flux_rd/", Count: 100, CPUTopo: &pmutypes.CPUTopology{NumaID: 0}},
		{Evt: "hisi_sccl1_ddrc1/flux_rd/", Count: 100, CPUTopo: &pmutypes.CPUTopology{NumaID: 0}},
		{Evt: "hisi_sccl3_ddrc0/flux_rd/", Count: 200, CPUTopo: &pmutypes.CPUTopology{NumaID: 1}},
		{Evt: "hisi_sccl3_ddrc1/flux_rd/", Count: 200, CPUTopo: &pmutypes.CPUTopology{NumaID: 1}},
	}

	buf, err := PmuGetDevMetric(rows, MetricDDRReadBandwidth)
	require.NoError(t, err)
	defer DevDataFree(buf)

	require.Len(t, buf.Values, 2)
	assert.Equal(t, Value{Kind: MetricDDRReadBandwidth, NumaID: 0, Cpu: -1, Count: 6400}, buf.Values[0])
	assert.Equal(t, Value{Kind: MetricDDRReadBandwidth, NumaID: 1, Cpu: -1, Count: 12800}, buf.Values[1])
}

func TestPmuGetDevMetricL3PerCore(t *testing.T) {
	rows := []pmutypes.Data{
		{Evt: "hisi_l3c0/rx_ops_num/", Count: 10, Cpu: 0},
		{Evt: "hisi_l3c1/rx_ops_num/", Count: 20, Cpu: 1},
	}
	buf, err := PmuGetDevMetric(rows, MetricL3Traffic)
	require.NoError(t, err)
	require.Len(t, buf.Values, 2)
	assert.Equal(t, float64(640), buf.Values[0].Count)
	assert.Equal(t, float64(1280), buf.Values[1].Count)
}

func TestPmuGetDevMetricPCIeBandwidthPairsByBDF(t *testing.T) {
	rows := []pmutypes.Data{
		{Evt: "hisi_pcie0/pcie_packet_len=0x1,bdf_param=0x100/", Count: 100},
		{Evt: "hisi_pcie0/pcie_latency=0x1,bdf_param=0x100/", Count: 50},
	}
	buf, err := PmuGetDevMetric(rows, MetricPCIeBandwidth)
	require.NoError(t, err)
	require.Len(t, buf.Values, 1)
	assert.Equal(t, "100", buf.Values[0].BDF)
	assert.Equal(t, float64(8), buf.Values[0].Count)
}

func TestPmuGetDevMetricPCIeBandwidthZeroLatency(t *testing.T) {
	rows := []pmutypes.Data{
		{Evt: "hisi_pcie0/pcie_packet_len=0x1,bdf_param=0x100/", Count: 100},
	}
	buf, err := PmuGetDevMetric(rows, MetricPCIeBandwidth)
	require.NoError(t, err)
	require.Len(t, buf.Values, 1)
	assert.Equal(t, float64(0), buf.Values[0].Count)
}

func TestPmuGetDevMetricSMMUSumsPerInstance(t *testing.T) {
	rows := []pmutypes.Data{
		{Evt: "smmu_pmu_4/transaction/", Count: 5},
		{Evt: "smmu_pmu_4/transaction/", Count: 7},
	}
	buf, err := PmuGetDevMetric(rows, MetricSMMUTransactions)
	require.NoError(t, err)
	require.Len(t, buf.Values, 1)
	assert.Equal(t, float64(12), buf.Values[0].Count)
}

func TestPmuGetDevMetricIgnoresUnrelatedRows(t *testing.T) {
	rows := []pmutypes.Data{{Evt: "cycles", Count: 1}}
	buf, err := PmuGetDevMetric(rows, MetricDDRReadBandwidth)
	require.NoError(t, err)
	assert.Empty(t, buf.Values)
}

func TestPmuGetDevMetricUnknownKind(t *testing.T) {
	_, err := PmuGetDevMetric(nil, MetricKind(99))
	assert.Error(t, err)
}

func TestDevDataFreeDoubleFreeIsNoop(t *testing.T) {
	buf := &DeviceDataBuffer{Values: []Value{{Kind: MetricL3Traffic}}}
	DevDataFree(buf)
	assert.Nil(t, buf.Values)
	DevDataFree(buf)
}
