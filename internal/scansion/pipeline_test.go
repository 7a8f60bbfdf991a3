package scansion_test

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/bedwards/sonnet/internal/observe"
	"github.com/bedwards/sonnet/internal/phonetic"
	"github.com/bedwards/sonnet/internal/rhyme"
	"github.com/bedwards/sonnet/internal/scansion"
	"github.com/bedwards/sonnet/internal/versetest"
)

var quatrain = []string{
	"Shall I compare thee to a summer's day?",
	"Thou art more lovely and more temperate:",
	"And thou art lovely as the May",
	"The burthen green",
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want []string
	}{
		{"Shall I compare thee to a summer's day?", []string{"shall", "i", "compare", "thee", "to", "a", "summer's", "day"}},
		{"  Rough-winds, do shake!  ", []string{"rough", "winds", "do", "shake"}},
		{"Summer's-day,", []string{"summer's", "day"}},
		{"Wh'r -- thou", []string{"wh'r", "thou"}},
		{"a summer\u2019s day\u2014thou art", []string{"a", "summer's", "day", "thou", "art"}},
		{"\uFB01re", []string{"fire"}},
		{"", nil},
		{"?!", nil},
	}
	for _, tt := range tests {
		if got := scansion.Tokenize(tt.line); !slices.Equal(got, tt.want) {
			t.Errorf("Tokenize(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestScan_Report(t *testing.T) {
	t.Parallel()

	p := scansion.New(versetest.Dictionary(t))
	rep, err := p.Scan(context.Background(), quatrain)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(rep.Lines) != len(quatrain) {
		t.Fatalf("len(Lines) = %d, want %d", len(rep.Lines), len(quatrain))
	}

	first := rep.Lines[0]
	if !first.Meter.IsIambicPentameter {
		t.Errorf("line 0 digits %q, want pentameter", first.Meter.Digits)
	}
	if !first.Scansion.Clean() {
		t.Errorf("line 0 scored %s, want clean", first.Scansion.Summary())
	}
	if want := "˘ ¯ ˘ ¯ ˘ ¯ ˘ ¯ ˘ ¯    (10/10)"; first.Rendered != want {
		t.Errorf("line 0 rendered %q, want %q", first.Rendered, want)
	}
	if first.EndWord != "day" {
		t.Errorf("line 0 end word = %q, want day", first.EndWord)
	}

	if rep.Lines[1].Meter.IsIambicPentameter {
		t.Error("line 1 classified as pentameter")
	}
	if rep.Pentameter != 1 {
		t.Errorf("Pentameter = %d, want 1", rep.Pentameter)
	}

	if !slices.Equal(rep.Unknown, []string{"as"}) {
		t.Errorf("Unknown = %v, want [as]", rep.Unknown)
	}

	// (0,2) day/may rhyme; (1,3) temperate/green do not.
	want := []rhyme.Mismatch{{First: 1, Second: 3, FirstWord: "temperate", SecondWord: "green"}}
	if !slices.Equal(rep.Mismatches, want) {
		t.Errorf("Mismatches = %+v, want %+v", rep.Mismatches, want)
	}

	burthen := rep.Lines[3].Words[1]
	if !burthen.Known || burthen.Fallback != "alias" || burthen.Markers != "10" {
		t.Errorf("burthen = %+v, want alias to burden with markers 10", burthen)
	}
	if rep.Lines[0].Words[0].Fallback != "" {
		t.Errorf("exact match has fallback %q", rep.Lines[0].Words[0].Fallback)
	}
}

func TestScan_UnknownKeepsPosition(t *testing.T) {
	t.Parallel()

	p := scansion.New(versetest.Dictionary(t))
	line := p.ScanLine(context.Background(), "The quux day")

	if got := line.Meter.Digits; got != "0?0" {
		t.Errorf("Digits = %q, want 0?0", got)
	}
	if line.Scansion.Total != 2 || len(line.Scansion.Marks) != 3 {
		t.Errorf("Scansion = %+v, want 3 positions with 2 known", line.Scansion)
	}
	if line.Words[1].Markers != "?" || line.Words[1].Known {
		t.Errorf("unknown word = %+v", line.Words[1])
	}
}

func TestScan_BlankLine(t *testing.T) {
	t.Parallel()

	p := scansion.New(versetest.Dictionary(t))
	rep, err := p.Scan(context.Background(), []string{"", "Shall I compare thee to a summer's day?", "   ", "away"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(rep.Lines[0].Words) != 0 || rep.Lines[0].EndWord != "" {
		t.Errorf("blank line = %+v", rep.Lines[0])
	}
	// A blank end word skips its pair instead of reporting a mismatch.
	if len(rep.Mismatches) != 0 {
		t.Errorf("Mismatches = %+v, want none", rep.Mismatches)
	}
}

func TestScan_LimitedWorkers(t *testing.T) {
	t.Parallel()

	p := scansion.New(versetest.Dictionary(t), scansion.WithWorkers(1))
	rep, err := p.Scan(context.Background(), quatrain)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for i, l := range rep.Lines {
		if l.Index != i || l.Text != quatrain[i] {
			t.Errorf("line %d = {%d %q}, want input order", i, l.Index, l.Text)
		}
	}
}

func TestScan_TooManyLines(t *testing.T) {
	t.Parallel()

	p := scansion.New(versetest.Dictionary(t), scansion.WithMaxLines(2))
	if _, err := p.Scan(context.Background(), quatrain); !errors.Is(err, scansion.ErrTooManyLines) {
		t.Errorf("err = %v, want ErrTooManyLines", err)
	}
}

func TestScan_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := scansion.New(versetest.Dictionary(t))
	if _, err := p.Scan(ctx, quatrain); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

type stubSuggester struct {
	calls atomic.Int32
}

func (s *stubSuggester) Suggest(word string, limit int) []phonetic.Suggestion {
	s.calls.Add(1)
	return []phonetic.Suggestion{{Word: "stub-" + word, Confidence: 0.9}}
}

func TestScan_Suggestions(t *testing.T) {
	t.Parallel()

	stub := &stubSuggester{}
	p := scansion.New(versetest.Dictionary(t), scansion.WithSuggester(stub, 3))
	rep, err := p.Scan(context.Background(), quatrain)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	as := rep.Lines[2].Words[4]
	if as.Text != "as" || len(as.Suggestions) != 1 || as.Suggestions[0].Word != "stub-as" {
		t.Errorf("word 4 of line 2 = %+v, want suggestions for as", as)
	}
	if got := stub.calls.Load(); got != 1 {
		t.Errorf("suggester called %d times, want once", got)
	}
}

func TestScan_RealSuggester(t *testing.T) {
	t.Parallel()

	dict := versetest.Dictionary(t)
	p := scansion.New(dict, scansion.WithSuggester(phonetic.New(dict.Words()), 2))
	line := p.ScanLine(context.Background(), "Thy delite")
	var found bool
	for _, w := range line.Words {
		if w.Text == "delite" && len(w.Suggestions) > 0 && w.Suggestions[0].Word == "delight" {
			found = true
		}
	}
	if !found {
		t.Errorf("no delight suggestion for delite in %+v", line.Words)
	}
}

func TestScan_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	p := scansion.New(versetest.Dictionary(t), scansion.WithMetrics(metrics))
	if _, err := p.Scan(context.Background(), quatrain); err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	lookups := map[string]int64{}
	var lines int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			switch met.Name {
			case "sonnet.lookup.total":
				for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
					v, _ := dp.Attributes.Value(attribute.Key("result"))
					lookups[v.AsString()] = dp.Value
				}
			case "sonnet.scan.lines":
				lines = met.Data.(metricdata.Sum[int64]).DataPoints[0].Value
			}
		}
	}
	if lookups["alias"] != 1 || lookups["unknown"] != 1 {
		t.Errorf("lookups = %v, want one alias and one unknown", lookups)
	}
	if lines != int64(len(quatrain)) {
		t.Errorf("scanned lines = %d, want %d", lines, len(quatrain))
	}
}
