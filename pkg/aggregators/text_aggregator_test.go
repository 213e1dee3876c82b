package aggregators

import "testing"

func TestSentenceAggregatorSplitsOnPunctuation(t *testing.T) {
	a := NewSentenceAggregator(AggregatorConfig{MinLen: 4})
	var got []string
	for _, tok := range []string{"Hallo ", "Max", "! ", "Wie ", "geht ", "es", "?"} {
		if s := a.AddToken(tok); s != "" {
			got = append(got, s)
		}
	}
	if len(got) != 2 || got[0] != "Hallo Max!" || got[1] != "Wie geht es?" {
		t.Fatalf("unexpected sentences %q", got)
	}
	if a.Flush() != "" {
		t.Fatalf("expected empty buffer")
	}
	if a.Text() != "Hallo Max! Wie geht es?" {
		t.Fatalf("unexpected full text %q", a.Text())
	}
}

func TestSentenceAggregatorHoldsShortSentences(t *testing.T) {
	a := NewSentenceAggregator(AggregatorConfig{MinLen: 8})
	if s := a.AddToken("Ja."); s != "" {
		t.Fatalf("expected short sentence held, got %q", s)
	}
	if s := a.AddToken(" Das stimmt."); s != "Ja. Das stimmt." {
		t.Fatalf("unexpected sentence %q", s)
	}
}

func TestSentenceAggregatorMaxTokens(t *testing.T) {
	a := NewSentenceAggregator(AggregatorConfig{MinLen: 1, MaxTokens: 2})
	if s := a.AddToken("eins "); s != "" {
		t.Fatalf("unexpected early flush %q", s)
	}
	if s := a.AddToken("zwei"); s != "eins zwei" {
		t.Fatalf("expected forced flush, got %q", s)
	}
}
