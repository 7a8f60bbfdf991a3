package meter_test

import (
	"strings"
	"testing"

	"github.com/bedwards/sonnet/internal/meter"
	"github.com/bedwards/sonnet/pkg/cmudict"
)

func TestMeter_Pentameter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		words     []string
		want      bool
		syllables int
	}{
		{"alternating digits", []string{"0", "1", "0", "1", "0", "1", "0", "1", "0", "1"}, true, 10},
		{"iambic words", []string{"01", "01", "01", "01", "01"}, true, 10},
		{"secondary on beat", []string{"02", "01", "01", "01", "01"}, true, 10},
		// shall I compare thee to a summer's day
		{"demoted monosyllables", []string{"1", "1", "01", "1", "1", "0", "10", "1"}, true, 10},
		{"nine syllables", []string{"0", "1", "0", "1", "0", "1", "0", "1", "0"}, false, 9},
		{"eleven syllables", []string{"01", "01", "01", "01", "01", "0"}, false, 11},
		{"trochaic", []string{"10", "10", "10", "10", "10"}, false, 10},
		{"unknown word", []string{"01", "01", "?", "1", "01", "01"}, false, 10},
		{"malformed stress string", []string{"01", "abc", "01", "01", "01", "01"}, false, 11},
		{"empty stress string", []string{"01", "", "01", "01", "01"}, false, 9},
		{"empty line", nil, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := meter.Meter(tt.words)
			if got.IsIambicPentameter != tt.want {
				t.Errorf("IsIambicPentameter = %v, want %v (digits %q)", got.IsIambicPentameter, tt.want, got.Digits)
			}
			if got.SyllableCount != tt.syllables {
				t.Errorf("SyllableCount = %d, want %d", got.SyllableCount, tt.syllables)
			}
			if len(got.Marks) != tt.syllables {
				t.Errorf("len(Marks) = %d, want %d", len(got.Marks), tt.syllables)
			}
		})
	}
}

func TestMeter_DemotionOnlyOnEvenCount(t *testing.T) {
	t.Parallel()

	got := meter.Meter([]string{"1", "1", "1"})
	if got.Digits != "010" {
		t.Errorf("Digits = %q, want %q", got.Digits, "010")
	}

	got = meter.Meter([]string{"10", "1"})
	if got.Digits != "100" {
		t.Errorf("Digits = %q, want %q", got.Digits, "100")
	}
}

func TestMeter_MalformedIsOnePosition(t *testing.T) {
	t.Parallel()

	got := meter.Meter([]string{"01", "x2", "1"})
	if got.Digits != "01?1" {
		t.Errorf("Digits = %q, want %q", got.Digits, "01?1")
	}
	if got.SyllableCount != len(got.Marks) {
		t.Errorf("SyllableCount = %d, len(Marks) = %d", got.SyllableCount, len(got.Marks))
	}
	if got.Marks[2].Known() {
		t.Errorf("mark 2 = %+v, want unknown", got.Marks[2])
	}
}

func syl(markers ...string) []cmudict.Syllable {
	var out []cmudict.Syllable
	for _, m := range markers {
		out = append(out, cmudict.SyllablesOf(m)...)
	}
	return out
}

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		words []string
		score int
		total int
		clean bool
	}{
		{"perfect iambs", []string{"01", "01", "01", "01", "01"}, 10, 10, true},
		{"monosyllables agree anywhere", []string{"1", "1", "1", "1", "1", "1", "1", "1", "1", "1"}, 10, 10, true},
		{"trochees", []string{"10", "10", "10", "10", "10"}, 0, 10, false},
		{"secondary on beat", []string{"02", "02", "02", "02", "02"}, 10, 10, true},
		{"secondary on offbeat", []string{"20", "01", "01", "01", "01"}, 8, 10, false},
		{"unknown keeps position", []string{"01", "?", "1", "01", "01", "01"}, 9, 9, false},
		{"short line", []string{"01", "01"}, 4, 4, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := meter.Score(syl(tt.words...))
			if got.Score != tt.score || got.Total != tt.total {
				t.Errorf("Score = %d/%d, want %d/%d", got.Score, got.Total, tt.score, tt.total)
			}
			if got.Clean() != tt.clean {
				t.Errorf("Clean = %v, want %v", got.Clean(), tt.clean)
			}
		})
	}
}

func TestScore_WordIndex(t *testing.T) {
	t.Parallel()

	got := meter.Score(syl("01", "?", "1", "100"))
	wantWords := []int{0, 0, 1, 2, 3, 3, 3}
	if len(got.Marks) != len(wantWords) {
		t.Fatalf("len(Marks) = %d, want %d", len(got.Marks), len(wantWords))
	}
	for i, m := range got.Marks {
		if m.Word != wantWords[i] {
			t.Errorf("mark %d word = %d, want %d", i, m.Word, wantWords[i])
		}
		if m.Position != i {
			t.Errorf("mark %d position = %d", i, m.Position)
		}
	}
	if got.Marks[2].Known() {
		t.Error("unknown word mark reports Known")
	}
}

func TestScansion_Render(t *testing.T) {
	t.Parallel()

	got := meter.Score(syl("01", "10", "?")).Render()
	want := "˘ ¯ ˘ ¯ ?    ( 2/ 4)"
	if got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
	if !strings.HasSuffix(meter.Score(syl("01", "01", "01", "01", "01")).Render(), "(10/10)") {
		t.Error("clean line should render (10/10)")
	}
}
