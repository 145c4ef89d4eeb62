package signal

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestParse(t *testing.T) {
	for _, tt := range []struct {
		name    string
		raw     string
		wantNil bool
		err     error
		version int
		samples int
	}{
		{
			name:    "absent",
			raw:     "",
			wantNil: true,
		},
		{
			name:    "null",
			raw:     "null",
			wantNil: true,
		},
		{
			name:    "empty legacy array",
			raw:     "[]",
			wantNil: true,
		},
		{
			name:    "structured",
			raw:     `{"version":2,"trajectory":[{"t":0,"x":1,"y":1},{"t":16,"x":4,"y":2}],"clickLatency":800,"hoverDuration":400,"pointerVelocity":300,"scrollVelocity":20}`,
			version: VersionStructured,
			samples: 2,
		},
		{
			name:    "structured without version tag",
			raw:     `{"trajectory":[],"clickLatency":800}`,
			version: VersionStructured,
		},
		{
			name:    "legacy flat array",
			raw:     `[800, 400, 300, 20, 0, 1, 1, 16, 4, 2, 33, 9, 4]`,
			version: VersionLegacy,
			samples: 3,
		},
		{
			name: "legacy array with torn triplet",
			raw:  `[800, 400, 300, 20, 0, 1]`,
			err:  ErrBadLegacyShape,
		},
		{
			name: "future version",
			raw:  `{"version":9}`,
			err:  ErrUnknownVersion,
		},
		{
			name: "garbage",
			raw:  `true`,
			err:  ErrBadLegacyShape,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := Parse(json.RawMessage(tt.raw))
			if !errors.Is(err, tt.err) {
				t.Fatalf("want error %v, got %v", tt.err, err)
			}
			if tt.err != nil {
				return
			}

			if tt.wantNil {
				if sig != nil {
					t.Fatalf("want nil signal, got %+v", sig)
				}
				return
			}

			if sig == nil {
				t.Fatal("got nil signal")
			}
			if sig.Version != tt.version {
				t.Errorf("want version %d, got %d", tt.version, sig.Version)
			}
			if len(sig.Trajectory) != tt.samples {
				t.Errorf("want %d samples, got %d", tt.samples, len(sig.Trajectory))
			}
		})
	}
}

func TestParseLegacyCarriesTimings(t *testing.T) {
	sig, err := Parse(json.RawMessage(`[800, 400, 300, 20, 0, 1, 1]`))
	if err != nil {
		t.Fatal(err)
	}

	if sig.ClickLatency != 800 || sig.HoverDuration != 400 || sig.PointerVelocity != 300 || sig.ScrollVelocity != 20 {
		t.Errorf("legacy timings decoded wrong: %+v", sig)
	}
}

// jitterTrajectory builds a wobbly human-looking path.
func jitterTrajectory(n int) []Sample {
	result := make([]Sample, n)
	for i := range result {
		jitter := float64(i%3) * 2.5
		result[i] = Sample{
			T: float64(i)*17 + jitter,
			X: float64(i)*10 + jitter,
			Y: float64(i)*4 - jitter,
		}
	}
	return result
}

// lineTrajectory builds a perfectly straight, perfectly timed path.
func lineTrajectory(n int) []Sample {
	result := make([]Sample, n)
	for i := range result {
		result[i] = Sample{T: float64(i) * 10, X: float64(i) * 5, Y: float64(i) * 5}
	}
	return result
}

func TestFeatures(t *testing.T) {
	t.Run("human-like wobble", func(t *testing.T) {
		b := &Behavior{Version: VersionStructured, Trajectory: jitterTrajectory(20)}
		f := b.Features()

		if f.TrajectoryLen != 20 {
			t.Errorf("want 20 samples, got %d", f.TrajectoryLen)
		}
		if f.CurvatureMean <= straightEpsilon {
			t.Errorf("wobbly path scored as straight: curvature %f", f.CurvatureMean)
		}
		if f.TimingVariance < 1 {
			t.Errorf("jittered timing has variance %f", f.TimingVariance)
		}
	})

	t.Run("scripted straight line", func(t *testing.T) {
		b := &Behavior{Version: VersionStructured, Trajectory: lineTrajectory(20)}
		f := b.Features()

		if f.StraightFraction < 0.99 {
			t.Errorf("straight line has straight fraction %f", f.StraightFraction)
		}
		if f.TimingVariance != 0 {
			t.Errorf("constant timing has variance %f", f.TimingVariance)
		}
	})

	t.Run("degenerate trajectory", func(t *testing.T) {
		b := &Behavior{Version: VersionStructured, Trajectory: []Sample{{T: 0, X: 0, Y: 0}}}
		f := b.Features()

		if f.CurvatureMean != 0 || f.TimingVariance != 0 {
			t.Errorf("single sample produced nonzero trajectory features: %+v", f)
		}
	})
}

func TestVectorClipping(t *testing.T) {
	f := Features{
		TrajectoryLen:   100000,
		CurvatureMean:   50,
		TimingVariance:  1e9,
		ClickLatency:    1e7,
		HoverDuration:   -5,
		PointerVelocity: math.Inf(1),
		ScrollVelocity:  -1,
	}

	for i, v := range f.Vector() {
		if v < 0 || v > 1 {
			t.Errorf("component %d escaped [0,1]: %f", i, v)
		}
	}
}
