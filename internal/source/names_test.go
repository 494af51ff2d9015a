package source

import "testing"

func TestNameGeneratorDeterministic(t *testing.T) {
	a := NewNameGenerator(42)
	b := NewNameGenerator(42)

	for i := 0; i < 20; i++ {
		fa, ga := a.Generate(GenderFemale)
		fb, gb := b.Generate(GenderFemale)
		if fa != fb || ga != gb {
			t.Fatalf("same seed diverged at pick %d: (%s, %s) vs (%s, %s)", i, fa, ga, fb, gb)
		}
	}
}

func TestNameGeneratorGenderLists(t *testing.T) {
	contains := func(list []string, v string) bool {
		for _, s := range list {
			if s == v {
				return true
			}
		}
		return false
	}

	g := NewNameGenerator(7)
	for i := 0; i < 50; i++ {
		family, given := g.Generate(GenderMale)
		if family == "" || given == "" {
			t.Fatal("generated an empty name")
		}
		if !contains(givenMale, given) {
			t.Fatalf("male given name %q not in the male list", given)
		}

		_, given = g.Generate(GenderFemale)
		if !contains(givenFemale, given) {
			t.Fatalf("female given name %q not in the female list", given)
		}

		_, given = g.Generate(GenderUnknown)
		if !contains(givenNeutral, given) {
			t.Fatalf("unknown-gender given name %q not in the neutral list", given)
		}
	}
}
