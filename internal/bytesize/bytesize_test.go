package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in      string
		want    ByteSize
		wantErr bool
	}{
		{in: "1024", want: 1024},
		{in: "20Gi", want: 20 * GiB},
		{in: "20GiB", want: 20 * GiB},
		{in: "500MB", want: 500 * MB},
		{in: " 1.5 Ki ", want: 1536},
		{in: "10g", want: 10 * GB},
		{in: "", wantErr: true},
		{in: "ten", wantErr: true},
		{in: "5 parsecs", wantErr: true},
		{in: "-1Gi", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseByteSize(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestByteSize_String(t *testing.T) {
	assert.Equal(t, "512B", ByteSize(512).String())
	assert.Equal(t, "1KiB", KiB.String())
	assert.Equal(t, "20GiB", (20 * GiB).String())
	assert.Equal(t, "1.50MiB", (MiB + 512*KiB).String())
}

func TestByteSize_TextRoundTrip(t *testing.T) {
	text, err := (3 * GiB).MarshalText()
	require.NoError(t, err)

	var b ByteSize
	require.NoError(t, b.UnmarshalText(text))
	assert.Equal(t, 3*GiB, b)
}

func TestOf(t *testing.T) {
	assert.Equal(t, ByteSize(0), Of(-5))
	assert.Equal(t, ByteSize(42), Of(42))
}
