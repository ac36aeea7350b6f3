package ui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscribe/fieldscribe/internal/types"
)

func TestFormatMillis(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0:00.000"},
		{999, "0:00.999"},
		{12_000, "0:12.000"},
		{61_250, "1:01.250"},
		{3_600_000, "60:00.000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMillis(tt.ms), "FormatMillis(%d)", tt.ms)
	}
}

func TestPlainTheme_NoEscapes(t *testing.T) {
	theme := PlainTheme()

	assert.Equal(t, "IN_PROGRESS", theme.Phase(types.PhaseInProgress))
	assert.Equal(t, "pending", theme.Synced(false))
	assert.Equal(t, "✓ synced 3 tasks", theme.Successf("synced %d tasks", 3))
	assert.Equal(t, "✗ boom", theme.Errorf("boom"))
	assert.NotContains(t, theme.Warnf("careful"), "\x1b[")
}

func TestNewTheme_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	theme := NewTheme(&buf)
	assert.NotContains(t, theme.Phase(types.PhaseCompleted), "\x1b[")
}

func TestTaskTable(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	local := types.LocalID(4)
	tasks := []types.Task{
		{ID: 1, RemoteID: 10, DisplayName: "interview.wav", Length: 61_250, CreatedAt: now, UpdatedAt: now},
		{ID: 2, RemoteID: 11, DisplayName: "memo.ogg", Length: 4000, CreatedAt: now, UpdatedAt: now, LocalFile: &local},
	}

	out := PlainTheme().TaskTable(tasks)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Contains(t, out, "REMOTE")
	assert.Contains(t, out, "interview.wav")
	assert.Contains(t, out, "1:01.250")
	assert.Contains(t, out, "NEW")
	assert.Contains(t, out, "yes")
}

func TestValidators(t *testing.T) {
	assert.NoError(t, ValidateMobile("+919876543210"))
	assert.NoError(t, ValidateMobile("9876543"))
	assert.Error(t, ValidateMobile("12345"))
	assert.Error(t, ValidateMobile("98765x3210"))

	assert.NoError(t, ValidatePassword("secret"))
	assert.Error(t, ValidatePassword("short"))

	assert.NoError(t, ValidateName("Asha"))
	assert.Error(t, ValidateName("   "))
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(strings.NewReader("")))
}
