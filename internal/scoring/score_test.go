package scoring

import (
	"errors"
	"testing"

	"podium-bot/internal/apperr"
	"podium-bot/internal/models"
)

const (
	A int64 = iota + 1
	B
	C
	D
)

var profile = models.ScoringProfile{Exact: 10, RiderOnly: 5, PerfectPodium: 10}

func TestScoreScenarios(t *testing.T) {
	podium := Podium{A, B, C}
	cases := []struct {
		name  string
		picks models.Picks
		want  Breakdown
	}{
		{"perfect podium", models.Picks{A, B, C}, Breakdown{Slots: [3]int{10, 10, 10}, Bonus: 10, Total: 40}},
		{"one outsider", models.Picks{A, C, D}, Breakdown{Slots: [3]int{10, 5, 0}, Total: 15}},
		{"reversed", models.Picks{C, B, A}, Breakdown{Slots: [3]int{5, 10, 5}, Total: 20}},
		{"nobody on the podium", models.Picks{D, D + 1, D + 2}, Breakdown{}},
		{"all riders wrong slot", models.Picks{B, C, A}, Breakdown{Slots: [3]int{5, 5, 5}, Total: 15}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.picks, podium, profile); got != tc.want {
				t.Errorf("Expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestScoreUsesProfile(t *testing.T) {
	got := Score(models.Picks{A, B, C}, Podium{A, B, C}, models.ScoringProfile{Exact: 3, RiderOnly: 1, PerfectPodium: 0})
	if got.Total != 9 || got.Bonus != 0 {
		t.Errorf("Expected 9 with no bonus, got %+v", got)
	}
}

func entry(rider int64, pos int, status models.FinishStatus) models.ResultEntry {
	return models.ResultEntry{RiderID: rider, Position: pos, Status: status}
}

func TestExtractPodium(t *testing.T) {
	p, err := ExtractPodium([]models.ResultEntry{
		entry(D, 4, models.FinishClassified),
		entry(C, 3, models.FinishClassified),
		entry(A, 1, models.FinishClassified),
		entry(B, 2, models.FinishClassified),
	})
	if err != nil {
		t.Fatal(err)
	}
	if p != (Podium{A, B, C}) {
		t.Errorf("Expected [A B C], got %v", p)
	}
}

func TestExtractPodiumIncomplete(t *testing.T) {
	cases := map[string][]models.ResultEntry{
		"empty": nil,
		"dsq in second": {
			entry(A, 1, models.FinishClassified),
			entry(B, 2, models.FinishDisqualified),
			entry(C, 3, models.FinishClassified),
		},
		"only two": {
			entry(A, 1, models.FinishClassified),
			entry(B, 2, models.FinishClassified),
		},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ExtractPodium(entries); !errors.Is(err, apperr.ErrIncompleteResult) {
				t.Errorf("Expected ErrIncompleteResult, got %v", err)
			}
		})
	}
}
