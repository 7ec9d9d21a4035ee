package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tod(t *testing.T, raw string) TimeOfDay {
	t.Helper()
	v, err := ParseTimeOfDay(raw)
	require.NoError(t, err)
	return v
}

func TestGenerateSlots_Basic(t *testing.T) {
	windows := []Window{{Start: tod(t, "09:00"), End: tod(t, "11:00")}}
	occupied := []TimeOfDay{tod(t, "09:30:00")}

	slots := GenerateSlots(windows, occupied, Options{})
	assert.Equal(t, []Slot{
		{Time: "09:00", Available: true},
		{Time: "09:30", Available: false},
		{Time: "10:00", Available: true},
		{Time: "10:30", Available: true},
	}, slots)
}

func TestGenerateSlots_EndIsExclusive(t *testing.T) {
	windows := []Window{{Start: tod(t, "08:00"), End: tod(t, "08:30")}}
	assert.Equal(t, []Slot{{Time: "08:00", Available: true}}, GenerateSlots(windows, nil, Options{}))
}

func TestGenerateSlots_ShortWindowYieldsStart(t *testing.T) {
	windows := []Window{
		{Start: tod(t, "14:00"), End: tod(t, "14:10")},
		{Start: tod(t, "15:00"), End: tod(t, "15:00")},
	}
	assert.Equal(t, []Slot{{Time: "14:00", Available: true}}, GenerateSlots(windows, nil, Options{}))
}

func TestGenerateSlots_MergesOverlappingWindows(t *testing.T) {
	windows := []Window{
		{Start: tod(t, "10:00"), End: tod(t, "11:00")},
		{Start: tod(t, "09:00"), End: tod(t, "10:30")},
	}
	slots := GenerateSlots(windows, []TimeOfDay{tod(t, "10:00")}, Options{})
	assert.Equal(t, []Slot{
		{Time: "09:00", Available: true},
		{Time: "09:30", Available: true},
		{Time: "10:00", Available: false},
		{Time: "10:30", Available: true},
	}, slots)
}

func TestGenerateSlots_CustomStepAndCutoff(t *testing.T) {
	windows := []Window{{Start: tod(t, "09:00"), End: tod(t, "10:00")}}
	slots := GenerateSlots(windows, nil, Options{
		Step:      20 * time.Minute,
		HasCutoff: true,
		Cutoff:    tod(t, "09:20"),
	})
	assert.Equal(t, []Slot{
		{Time: "09:00", Available: false},
		{Time: "09:20", Available: false},
		{Time: "09:40", Available: true},
	}, slots)
}

func TestGenerateSlots_NoWindows(t *testing.T) {
	slots := GenerateSlots(nil, nil, Options{})
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestLookup(t *testing.T) {
	slots := []Slot{{Time: "09:00", Available: true}}
	s, ok := Lookup(slots, tod(t, "09:00"))
	assert.True(t, ok)
	assert.True(t, s.Available)
	_, ok = Lookup(slots, tod(t, "09:15"))
	assert.False(t, ok)
}

func TestParseTimeOfDay(t *testing.T) {
	for _, bad := range []string{"", "9:00", "24:00", "12:60", "12", "aa:bb", "12:00:99"} {
		_, err := ParseTimeOfDay(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "07:05", tod(t, "07:05").String())
	assert.Equal(t, "23:59", tod(t, "23:59:59").String())
}

func TestParseDate(t *testing.T) {
	_, err := ParseDate("2025-02-30")
	assert.Error(t, err)
	d, err := ParseDate("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.March, d.Month())
}
