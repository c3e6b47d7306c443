package math

import (
	"testing"
)

func TestVec3Length(t *testing.T) {
	v := Vec3{2, 3, 6}
	if got := v.Length(); got != 7 {
		t.Errorf("Vec3.Length() = %v, want 7", got)
	}
}

func TestVec3ComponentWith(t *testing.T) {
	v := Vec3{1, 2, 3}
	for _, a := range []Axis{AxisX, AxisY, AxisZ} {
		w := v.With(a, 10)
		if w.Component(a) != 10 {
			t.Errorf("With(%s) did not set component, got %v", a, w)
		}
	}
	if v.Component(AxisY) != 2 {
		t.Errorf("Component(y) = %v, want 2", v.Component(AxisY))
	}
}

func TestVec3MinMax(t *testing.T) {
	a := Vec3{1, 5, -2}
	b := Vec3{3, -1, 0}
	if got := a.Min(b); got != (Vec3{1, -1, -2}) {
		t.Errorf("Min = %v", got)
	}
	if got := a.Max(b); got != (Vec3{3, 5, 0}) {
		t.Errorf("Max = %v", got)
	}
}

func TestParseAxis(t *testing.T) {
	tests := []struct {
		in      string
		want    Axis
		wantErr bool
	}{
		{"x", AxisX, false},
		{"Y", AxisY, false},
		{" z ", AxisZ, false},
		{"w", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAxis(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAxis(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseAxis(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
