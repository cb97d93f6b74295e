package rccl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "16M", want: 16 << 20},
		{in: "8G", want: 8 << 30},
		{in: "1g", want: 1 << 30},
		{in: "2T", want: 2 << 40},
		{in: "512K", want: 512 << 10},
		{in: "1024", want: 1024},
		{in: "1.5G", want: 1610612736},
		{in: " 8G ", want: 8 << 30},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "G", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

const sampleOutput = `# nThread 1 nGpus 1 minBytes 16777216 maxBytes 1073741824 step: 2(factor) warmup iters: 5 iters: 20 agg iters: 1 validation: 1 graph: 0
#
#                                                              out-of-place                       in-place
#       size         count      type   redop    root     time   algbw   busbw #wrong     time   algbw   busbw #wrong
#        (B)    (elements)                                (us)  (GB/s)  (GB/s)            (us)  (GB/s)  (GB/s)
    16777216       4194304     float     sum      -1   312.22   53.74  100.76      0   311.80   53.81  100.89      0
    33554432       8388608     float     sum      -1   540.21   62.11  116.45      0   542.11   61.90  116.05      0
  1073741824     268435456     float     sum      -1  8123.45  132.18  247.83      0  8120.01  132.23  247.94      0
# Out of bounds values : 0 OK
# Avg bus bandwidth    : 155.02
`

func TestParseAlgBW(t *testing.T) {
	algbw := ParseAlgBW(sampleOutput, 1<<30)
	assert.InDelta(t, 132.18, algbw, 0.001)
}

func TestParseAlgBWSizeTolerance(t *testing.T) {
	// within the tolerance window around the target size
	algbw := ParseAlgBW(sampleOutput, 1<<30-5000)
	assert.InDelta(t, 132.18, algbw, 0.001)
}

func TestParseAlgBWNoMatch(t *testing.T) {
	assert.Zero(t, ParseAlgBW(sampleOutput, 1<<40))
}

func TestParseAlgBWNoHeader(t *testing.T) {
	// data rows without the table header must not be parsed
	out := "  1073741824     268435456     float     sum      -1  8123.45  132.18  247.83      0  8120.01  132.23  247.94      0"
	assert.Zero(t, ParseAlgBW(out, 1<<30))
}

func TestParseAlgBWEmpty(t *testing.T) {
	assert.Zero(t, ParseAlgBW("", 1<<30))
}
