package version

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		epoch   uint64
		base    string
		release uint64
		segs    int
	}{
		{"1.2.0", 0, "1.2.0", 1, 5},
		{"1.0-1", 0, "1.0", 1, 3},
		{"1.5-2", 0, "1.5", 2, 3},
		{"2:1.0-3", 2, "1.0", 3, 3},
		{"1_2_3", 0, "1.2.3", 1, 5},
		{"1.0rc1-4", 0, "1.0rc1", 4, 5},
		{"r123.abcdef", 0, "r123.abcdef", 1, 3},
		{" 3.1 ", 0, "3.1", 1, 3},
		{"1.0-0", 0, "1.0", 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			spec, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.input, err)
			}
			if spec.Epoch != tt.epoch {
				t.Errorf("epoch = %d, want %d", spec.Epoch, tt.epoch)
			}
			if got := spec.BaseString(); got != tt.base {
				t.Errorf("base = %q, want %q", got, tt.base)
			}
			if spec.Release != tt.release {
				t.Errorf("release = %d, want %d", spec.Release, tt.release)
			}
			if len(spec.Base) != tt.segs {
				t.Errorf("got %d segments, want %d: %+v", len(spec.Base), tt.segs, spec.Base)
			}
		})
	}
}

func TestParseSegments(t *testing.T) {
	spec := MustParse("10.2b3")
	want := []Segment{
		{Value: "10", Numeric: true},
		{Value: ".", Numeric: false},
		{Value: "2", Numeric: true},
		{Value: "b", Numeric: false},
		{Value: "3", Numeric: true},
	}
	if len(spec.Base) != len(want) {
		t.Fatalf("got %+v, want %+v", spec.Base, want)
	}
	for i := range want {
		if spec.Base[i] != want[i] {
			t.Errorf("segment %d = %+v, want %+v", i, spec.Base[i], want[i])
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"-1",
		"1:",
		"1.0-",
		"1.0-abc",
		"x:1.0",
		"1.0-99999999999999999999999",
	}

	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			_, err := Parse(input)
			if err == nil {
				t.Fatalf("Parse(%q) expected error", input)
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected error to wrap ErrInvalid")
			}
		})
	}
}

func TestParseOptional(t *testing.T) {
	spec, err := ParseOptional("   ")
	if err != nil || spec != nil {
		t.Fatalf("ParseOptional(blank) = %v, %v; want nil, nil", spec, err)
	}

	spec, err = ParseOptional("1.0")
	if err != nil {
		t.Fatalf("ParseOptional failed: %v", err)
	}
	if spec == nil || spec.String() != "1.0-1" {
		t.Errorf("ParseOptional(1.0) = %v, want 1.0-1", spec)
	}

	if _, err := ParseOptional("1.0-x"); err == nil {
		t.Error("expected error for non-numeric release")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"1.2.0", "1.2.0-1"},
		{"0:1.2.0-3", "1.2.0-3"},
		{"2:1.2.0-3", "2:1.2.0-3"},
		{"1.0-0", "1.0"},
		{"1_2", "1.2-1"},
	}

	for _, tt := range tests {
		if got := MustParse(tt.input).String(); got != tt.want {
			t.Errorf("String(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestWithRelease(t *testing.T) {
	orig := MustParse("1:2.0-7")
	reset := orig.WithRelease(1)
	if reset.String() != "1:2.0-1" {
		t.Errorf("WithRelease(1) = %q", reset.String())
	}
	if orig.Release != 7 {
		t.Errorf("original release changed to %d", orig.Release)
	}
	reset.Base[0].Value = "9"
	if orig.Base[0].Value != "2" {
		t.Error("WithRelease shares base segments with the original")
	}
}

func TestEqual(t *testing.T) {
	if !MustParse("1.0").Equal(MustParse("1.0-1")) {
		t.Error("1.0 and 1.0-1 should be equal")
	}
	if !MustParse("1_0").Equal(MustParse("1.0")) {
		t.Error("underscores should normalise to dots")
	}
	if MustParse("1.0-1").Equal(MustParse("1.0-2")) {
		t.Error("different releases should not be equal")
	}
	if MustParse("1:1.0").Equal(MustParse("1.0")) {
		t.Error("different epochs should not be equal")
	}
}
