package morph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Faultbox/facerig/pkg/math"
)

func zeroDisp(n int) Displacement {
	return make(Displacement, n)
}

func TestStoreAddDuplicate(t *testing.T) {
	s := NewStore(3)
	_, err := s.Add("Mouth_Open", zeroDisp(3))
	require.NoError(t, err)

	_, err = s.Add("Mouth_Open", zeroDisp(3))
	var dup *DuplicateNameError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "Mouth_Open", dup.Name)
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestStoreAddLengthMismatch(t *testing.T) {
	s := NewStore(3)
	_, err := s.Add("x", zeroDisp(2))
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestStoreAddRange(t *testing.T) {
	s := NewStore(1)
	id, err := s.Add("Closed", zeroDisp(1), WithRange(0, 0), WithWeight(0.7))
	require.NoError(t, err)
	tgt, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, Range{Min: 0, Max: 0}, tgt.Range)
	assert.Equal(t, float32(0), tgt.Weight)

	_, err = s.Add("Inverted", zeroDisp(1), WithRange(1, -1))
	assert.ErrorIs(t, err, ErrInvalidRange)
	_, ok = s.Lookup("Inverted")
	assert.False(t, ok)
}

func TestStoreSetWeightClamps(t *testing.T) {
	s := NewStore(1)
	id, err := s.Add("a", zeroDisp(1))
	require.NoError(t, err)
	wide, err := s.Add("b", zeroDisp(1), WithRange(0, 2))
	require.NoError(t, err)

	tests := []struct {
		id   TargetID
		in   float32
		want float32
	}{
		{id, 0.5, 0.5},
		{id, 1.5, 1},
		{id, -3, 0},
		{wide, 1.5, 1.5},
		{wide, 5, 2},
	}
	for _, tt := range tests {
		require.NoError(t, s.SetWeight(tt.id, tt.in))
		got, err := s.Weight(tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "SetWeight(%d, %v)", tt.id, tt.in)
	}

	assert.ErrorIs(t, s.SetWeight(99, 1), ErrUnknownTarget)
}

func TestStoreSetWeightIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lo := rapid.Float32Range(-2, 0).Draw(t, "lo")
		hi := rapid.Float32Range(0, 2).Draw(t, "hi")
		w := rapid.Float32Range(-10, 10).Draw(t, "w")

		s := NewStore(1)
		id, err := s.Add("t", zeroDisp(1), WithRange(lo, hi))
		if err != nil {
			t.Fatal(err)
		}
		want := Range{Min: lo, Max: hi}.Clamp(w)
		for i := 0; i < 3; i++ {
			if err := s.SetWeight(id, w); err != nil {
				t.Fatal(err)
			}
			got, _ := s.Weight(id)
			if got != want {
				t.Fatalf("iteration %d: weight %v, want %v", i, got, want)
			}
		}
	})
}

func TestStoreRemoveInUse(t *testing.T) {
	s := NewStore(1)
	id, err := s.Add("Talk_Open", zeroDisp(1))
	require.NoError(t, err)

	bound := true
	s.SetInUseFunc(func(tid TargetID) bool { return bound && tid == id })

	err = s.Remove(id)
	var inUse *TargetInUseError
	require.True(t, errors.As(err, &inUse))
	assert.Equal(t, "Talk_Open", inUse.Name)

	bound = false
	require.NoError(t, s.Remove(id))
	_, ok := s.Lookup("Talk_Open")
	assert.False(t, ok)
	assert.ErrorIs(t, s.Remove(id), ErrUnknownTarget)
}

func TestStoreInsertionOrder(t *testing.T) {
	s := NewStore(1)
	names := []string{"Vowel_O", "Mouth_Open", "Smile", "Vowel_A"}
	for _, n := range names {
		_, err := s.Add(n, zeroDisp(1))
		require.NoError(t, err)
	}
	id, _ := s.Lookup("Smile")
	require.NoError(t, s.Remove(id))

	var got []string
	for _, tg := range s.Targets() {
		got = append(got, tg.Name)
	}
	assert.Equal(t, []string{"Vowel_O", "Mouth_Open", "Vowel_A"}, got)
}

func TestStoreSnapshotSkipsInactive(t *testing.T) {
	s := NewStore(1)
	d := Displacement{{X: 1}}
	a, _ := s.Add("a", d, WithWeight(0.5))
	_, _ = s.Add("b", d, Inactive(), WithWeight(1))

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, float32(0.5), snap[0].Weight)

	require.NoError(t, s.SetActive(a, false))
	assert.Empty(t, s.Snapshot())
}

func TestStoreReplaceDisplacement(t *testing.T) {
	s := NewStore(1)
	id, _ := s.Add("a", Displacement{{X: 1}}, WithWeight(0.3))
	require.NoError(t, s.ReplaceDisplacement(id, Displacement{{Y: 2}}))

	tg, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, math.Vec3{Y: 2}, tg.Delta[0])
	assert.Equal(t, float32(0.3), tg.Weight)
	assert.ErrorIs(t, s.ReplaceDisplacement(id, zeroDisp(3)), ErrLengthMismatch)
}
