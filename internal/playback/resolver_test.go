package playback

import (
	"testing"
)

func TestFormatAyahID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		surah, ayah int
		want        string
	}{
		{114, 1, "114001"},
		{1, 7, "001007"},
		{2, 255, "002255"},
	}
	for _, tt := range tests {
		if got := FormatAyahID(tt.surah, tt.ayah); got != tt.want {
			t.Errorf("FormatAyahID(%d, %d) = %q, want %q", tt.surah, tt.ayah, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	r := NewResolver([]string{
		"https://cdn-a.example/audio/",
		"https://cdn-b.example/audio",
	})

	loc, err := r.Resolve("114", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.PassageID != "114" || loc.VerseID != 2 {
		t.Fatalf("unexpected locator identity: %+v", loc)
	}
	want := []string{
		"https://cdn-a.example/audio/114002.mp3",
		"https://cdn-b.example/audio/114002.mp3",
	}
	if len(loc.URLs) != len(want) {
		t.Fatalf("got %d URLs, want %d", len(loc.URLs), len(want))
	}
	for i := range want {
		if loc.URLs[i] != want[i] {
			t.Errorf("URLs[%d] = %q, want %q", i, loc.URLs[i], want[i])
		}
	}
}

func TestResolveDefaults(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil)
	loc, err := r.Resolve("1", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loc.URLs) == 0 {
		t.Fatal("no URLs from default mirrors")
	}
}

func TestResolveRejections(t *testing.T) {
	t.Parallel()

	r := NewResolver(nil)
	tests := []struct {
		name      string
		passageID string
		verseID   int
	}{
		{"non-numeric passage", "an-nas", 1},
		{"surah out of range", "115", 1},
		{"zero surah", "0", 1},
		{"non-positive verse", "114", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := r.Resolve(tt.passageID, tt.verseID); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}
