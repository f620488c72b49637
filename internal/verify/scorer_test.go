package verify

import (
	"strings"
	"testing"
)

const verseNas = "قُلْ أَعُوذُ بِرَبِّ ٱلنَّاسِ"

func TestScoreExactAfterNormalization(t *testing.T) {
	t.Parallel()

	s := NewScorer()
	res := s.Score("قل أعوذ", "قُلْ أَعُوذُ")
	if !res.Accepted {
		t.Fatalf("identical normalized strings not accepted: %+v", res)
	}
	if res.Diagnostic != "" {
		t.Errorf("accepted result carries diagnostic %q", res.Diagnostic)
	}
}

func TestScoreRejectsShortCandidates(t *testing.T) {
	t.Parallel()

	s := NewScorer()
	res := s.Score("قل", verseNas)
	if res.Accepted {
		t.Fatal("two-letter candidate was accepted")
	}
	if !strings.Contains(res.Diagnostic, "too short") {
		t.Errorf("diagnostic %q does not mention shortness", res.Diagnostic)
	}
}

func TestScoreContainment(t *testing.T) {
	t.Parallel()

	s := NewScorer()

	// Engine noise around the verse: candidate contains expected.
	res := s.Score("بسم الله قل اعوذ برب الناس امين", "قل اعوذ برب الناس")
	if !res.Accepted {
		t.Fatalf("candidate containing expected not accepted: %+v", res)
	}

	// Truncated capture: expected contains candidate.
	res = s.Score("اعوذ برب الناس", "قل اعوذ برب الناس")
	if !res.Accepted {
		t.Fatalf("candidate contained in expected not accepted: %+v", res)
	}
}

func TestScoreWordOverlapThreshold(t *testing.T) {
	t.Parallel()

	s := NewScorer()
	expected := "قل اعوذ برب الناس" // 4 countable words

	t.Run("two of four accepted", func(t *testing.T) {
		t.Parallel()
		// Two exact words, two unrelated fillers; not a substring of expected.
		res := s.Score("اعوذ ثم الناس شيء", expected)
		if !res.Accepted {
			t.Fatalf("50%% overlap rejected: %+v", res)
		}
		if res.MatchedWords < 2 || res.TotalWords != 4 {
			t.Errorf("matched %d/%d, want >=2/4", res.MatchedWords, res.TotalWords)
		}
	})

	t.Run("one of four rejected", func(t *testing.T) {
		t.Parallel()
		res := s.Score("الناس شيء كبير جدا", expected)
		if res.Accepted {
			t.Fatalf("25%% overlap accepted: %+v", res)
		}
		if res.Diagnostic == "" {
			t.Error("rejection carries no diagnostic")
		}
		if len(res.MissingWords) == 0 {
			t.Error("rejection lists no missing words")
		}
	})
}

func TestScoreFuzzyWordHeuristics(t *testing.T) {
	t.Parallel()

	s := NewScorer()

	t.Run("containment within token", func(t *testing.T) {
		t.Parallel()
		// Expected "برب" is a substring of the candidate token "بربكم".
		if !s.wordMatches("برب", []string{"بربكم"}) {
			t.Error("containment heuristic did not match برب in بربكم")
		}
	})

	t.Run("shared prefix with small length delta", func(t *testing.T) {
		t.Parallel()
		// Same leading three runes, lengths within 2.
		if !s.wordMatches("الناس", []string{"النار"}) {
			t.Error("prefix heuristic did not match الناس against النار")
		}
	})

	t.Run("prefix rule needs three shared runes", func(t *testing.T) {
		t.Parallel()
		if s.wordMatches("برب", []string{"بقي"}) {
			t.Error("tokens sharing only one leading rune matched")
		}
	})

	t.Run("length delta limit", func(t *testing.T) {
		t.Parallel()
		// Shared three-rune prefix but a length difference of five, and no
		// substring relation: no heuristic may fire.
		if s.wordMatches("سلما", []string{"سلمتكمونا"}) {
			t.Error("prefix heuristic fired despite length delta above limit")
		}
	})
}

func TestScoreEmptyExpected(t *testing.T) {
	t.Parallel()

	s := NewScorer()
	res := s.Score("قل اعوذ برب الناس", "و ف ب")
	if res.Accepted {
		t.Fatalf("no countable expected words but accepted: %+v", res)
	}
	if res.TotalWords != 0 {
		t.Errorf("TotalWords = %d, want 0", res.TotalWords)
	}
	if res.Diagnostic == "" {
		t.Error("zero-word rejection has no diagnostic")
	}
}

func TestScoreDiagnosticCap(t *testing.T) {
	t.Parallel()

	s := NewScorer()
	expected := "الحمد لله رب العالمين الرحمن الرحيم مالك يوم الدين"
	res := s.Score("كلام اخر تماما مختلف هنا", expected)
	if res.Accepted {
		t.Fatalf("unrelated candidate accepted: %+v", res)
	}
	if len(res.MissingWords) > 5 {
		t.Errorf("missing words not capped: %d listed", len(res.MissingWords))
	}
}

func TestScoreSimilarityReported(t *testing.T) {
	t.Parallel()

	s := NewScorer()
	same := s.Score("قل اعوذ برب الناس", "قل اعوذ برب الناس")
	if same.Similarity < 0.99 {
		t.Errorf("identical strings similarity = %f, want ~1", same.Similarity)
	}
	diff := s.Score("كلام اخر تماما", "قل اعوذ برب الناس")
	if diff.Similarity >= same.Similarity {
		t.Errorf("unrelated similarity %f not below identical %f", diff.Similarity, same.Similarity)
	}
}

func TestScorerOptions(t *testing.T) {
	t.Parallel()

	strict := NewScorer(WithAcceptThreshold(0.9))
	res := strict.Score("اعوذ ثم الناس شيء", "قل اعوذ برب الناس")
	if res.Accepted {
		t.Fatalf("50%% overlap accepted under 0.9 threshold: %+v", res)
	}

	lax := NewScorer(WithMinCandidateLen(1))
	if got := lax.Score("قلت", "قل اعوذ برب الناس قلت"); !got.Accepted {
		// "قلت" is contained in expected; min length no longer blocks it.
		t.Fatalf("short candidate rejected despite lowered minimum: %+v", got)
	}
}
