package banner

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultPlanEndsOnFinalString(t *testing.T) {
	t.Parallel()

	tl, err := Default().Plan()
	require.NoError(t, err)

	require.Equal(t, "Interaction", tl.Final)
	require.True(t, tl.Cursor, "caret should stay visible")
	require.Len(t, tl.Frames, 23, "type 10, delete 6, type 7")

	last := tl.Frames[len(tl.Frames)-1]
	require.Equal(t, "Interaction", last.Text)
	require.Equal(t, tl.Duration, last.At, "nothing is scheduled after the final frame")
	require.Equal(t, 3200*time.Millisecond, tl.Duration)

	require.Equal(t, "Interaction", tl.TextAt(time.Hour), "no further loop after one cycle")
}

func TestPlanHoldsAfterFirstString(t *testing.T) {
	t.Parallel()

	tl, err := Default().Plan()
	require.NoError(t, err)

	typed := 10 * defaultTypeSpeed
	require.Equal(t, "", tl.TextAt(0))
	require.Equal(t, "Inteaction", tl.TextAt(typed))
	require.Equal(t, "Inteaction", tl.TextAt(typed+2*time.Second-time.Millisecond))
	require.Equal(t, "Inteactio", tl.TextAt(typed+2*time.Second+defaultDeleteSpeed))
}

func TestPlanDeletesToCommonPrefix(t *testing.T) {
	t.Parallel()

	tl, err := Default().Plan()
	require.NoError(t, err)

	shortest := tl.Frames[10].Text
	for _, f := range tl.Frames[10:] {
		if len([]rune(f.Text)) < len([]rune(shortest)) {
			shortest = f.Text
		}
	}
	require.Equal(t, "Inte", shortest)
}

func TestPlanRepeatsFullCycles(t *testing.T) {
	t.Parallel()

	seq := Default()
	seq.Repeat = 2

	tl, err := seq.Plan()
	require.NoError(t, err)
	require.Len(t, tl.Frames, 49)
	require.Equal(t, "Interaction", tl.Final)

	sawRestart := false
	for _, f := range tl.Frames[23:] {
		if f.Text == "Inteaction" {
			sawRestart = true
		}
	}
	require.True(t, sawRestart, "second cycle should type the first string again")
}

func TestPlanMultibyteText(t *testing.T) {
	t.Parallel()

	seq := Sequence{Steps: []Step{{Text: "はんこ"}}, Repeat: 1}
	tl, err := seq.Plan()
	require.NoError(t, err)
	require.Len(t, tl.Frames, 3)
	require.Equal(t, "は", tl.Frames[0].Text)
	require.Equal(t, "はんこ", tl.Final)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		seq  Sequence
		want bool
	}{
		"default":        {seq: Default(), want: true},
		"no steps":       {seq: Sequence{Repeat: 1}},
		"zero repeat":    {seq: Sequence{Steps: []Step{{Text: "a"}}}},
		"negative delay": {seq: Sequence{Steps: []Step{{Text: "a", Delay: -time.Second}}, Repeat: 1}},
		"negative speed": {seq: Sequence{Steps: []Step{{Text: "a"}}, Repeat: 1, TypeSpeed: -1}},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			err := tc.seq.Validate()
			if tc.want {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}

	if err := (Sequence{Repeat: 1}).Validate(); !errors.Is(err, ErrEmptySequence) {
		t.Fatalf("expected ErrEmptySequence, got %v", err)
	}
}
