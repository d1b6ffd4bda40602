package schedule

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCrontab struct {
	content string
	writes  int
	readErr error
}

func (m *memCrontab) Read(context.Context) (string, error) { return m.content, m.readErr }

func (m *memCrontab) Write(_ context.Context, content string) error {
	m.content = content
	m.writes++
	return nil
}

const foreign = "MAILTO=ops@example.com\n0 4 * * * /usr/bin/certbot renew\n"

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		ok   bool
		want Entry
	}{
		{
			name: "FiveFieldSpec",
			line: "0 3 * * * /usr/local/bin/chainsnap publish >/dev/null 2>&1 # chainsnap:publish",
			ok:   true,
			want: Entry{Mode: Publish, Spec: "0 3 * * *", Command: "/usr/local/bin/chainsnap publish >/dev/null 2>&1"},
		},
		{
			name: "Descriptor",
			line: "@daily chainsnap distribute # chainsnap:distribute",
			ok:   true,
			want: Entry{Mode: Distribute, Spec: "@daily", Command: "chainsnap distribute"},
		},
		{name: "Untagged", line: "0 4 * * * /usr/bin/certbot renew"},
		{name: "Comment", line: "# chainsnap:publish"},
		{name: "UnknownMode", line: "0 3 * * * x # chainsnap:backup"},
		{name: "MissingCommand", line: "0 3 * * * # chainsnap:publish"},
		{name: "Blank", line: "   "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseLine(tt.line)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestManager_InstallReplacesOnlyOwnLines(t *testing.T) {
	ctx := context.Background()
	tab := &memCrontab{content: foreign}
	m := NewManager(tab, "/usr/local/bin/chainsnap", "/etc/chainsnap/config.yaml")

	_, err := m.Install(ctx, Publish, "0 3 * * *")
	require.NoError(t, err)
	_, err = m.Install(ctx, Distribute, "30 4 * * *")
	require.NoError(t, err)
	entry, err := m.Install(ctx, Publish, "0 2 * * *")
	require.NoError(t, err)

	assert.Equal(t, "0 2 * * *", entry.Spec)
	assert.Contains(t, entry.Command, "--config /etc/chainsnap/config.yaml publish")
	assert.True(t, strings.HasPrefix(tab.content, foreign))
	assert.Equal(t, 1, strings.Count(tab.content, Publish.Tag()))
	assert.NotContains(t, tab.content, "0 3 * * *")

	entries, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Distribute, entries[0].Mode)
	assert.Equal(t, Publish, entries[1].Mode)
}

func TestManager_Remove(t *testing.T) {
	ctx := context.Background()
	tab := &memCrontab{content: foreign}
	m := NewManager(tab, "chainsnap", "")

	n, err := m.Remove(ctx, Publish)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, tab.writes)

	_, err = m.Install(ctx, Publish, "@daily")
	require.NoError(t, err)
	_, err = m.Install(ctx, Distribute, "@hourly")
	require.NoError(t, err)

	n, err = m.Remove(ctx, Publish)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, tab.content, "certbot")
	assert.Contains(t, tab.content, Distribute.Tag())
	assert.NotContains(t, tab.content, Publish.Tag())
}

func TestManager_InstallValidation(t *testing.T) {
	ctx := context.Background()
	tab := &memCrontab{}
	m := NewManager(tab, "chainsnap", "")

	_, err := m.Install(ctx, Publish, "every day")
	assert.Error(t, err)
	_, err = m.Install(ctx, Mode("backup"), "@daily")
	assert.ErrorIs(t, err, ErrUnknownMode)
	assert.Zero(t, tab.writes)

	tab.readErr = errors.New("crontab: permission denied")
	_, err = m.Install(ctx, Publish, "@daily")
	assert.Error(t, err)
}

func TestManager_CommandQuotesPaths(t *testing.T) {
	m := NewManager(&memCrontab{}, "/opt/chain snap/chainsnap", "")
	assert.Equal(t, "'/opt/chain snap/chainsnap' distribute >/dev/null 2>&1", m.Command(Distribute))
}

func TestManager_InstallEscapesPercent(t *testing.T) {
	ctx := context.Background()
	tab := &memCrontab{}
	m := NewManager(tab, "/usr/local/bin/chainsnap", "/etc/chainsnap/100%.yaml")

	entry, err := m.Install(ctx, Publish, "0 3 * * *")
	require.NoError(t, err)
	assert.Contains(t, entry.Command, "/etc/chainsnap/100%.yaml")

	line := strings.TrimSpace(tab.content)
	assert.Contains(t, line, `/etc/chainsnap/100\%.yaml`)
	assert.NotRegexp(t, `[^\\]%`, line)

	entries, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.Command, entries[0].Command)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Publish ")
	require.NoError(t, err)
	assert.Equal(t, Publish, m)

	_, err = ParseMode("restart")
	assert.ErrorIs(t, err, ErrUnknownMode)
}
