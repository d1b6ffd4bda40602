package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{input: "", want: FormatTable},
		{input: " JSON ", want: FormatJSON},
		{input: "yml", want: FormatYAML},
		{input: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrinter_Table(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable("NETWORK", "STATE")
	tbl.AddRow("mainnet", "completed")

	require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(tbl))
	assert.Contains(t, buf.String(), "NETWORK")
	assert.Contains(t, buf.String(), "completed")
}

func TestPrinter_TableFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(map[string]int{"runs": 2}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 2, got["runs"])
}

func TestPrinter_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(&buf, FormatYAML, false).Print(map[string]string{"state": "completed"}))
	assert.Equal(t, "state: completed\n", buf.String())
}

func TestPrinter_MessagesWithoutColor(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatTable, false)
	p.Success("ok")
	p.Warning("careful")
	assert.Equal(t, "ok\ncareful\n", buf.String())
}
