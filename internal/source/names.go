package source

import "math/rand"

// NameGenerator produces pseudonyms for patients whose source record has no
// name. Picks are keyed by gender and drawn from a seeded generator, so a
// fixed seed replays the same names. Not safe for concurrent use; the
// pipeline is strictly sequential.
type NameGenerator struct {
	rng *rand.Rand
}

// NewNameGenerator returns a generator seeded with seed.
func NewNameGenerator(seed int64) *NameGenerator {
	return &NameGenerator{rng: rand.New(rand.NewSource(seed))}
}

var (
	givenMale = []string{
		"James", "Robert", "John", "Michael", "David", "William", "Richard",
		"Joseph", "Thomas", "Carlos", "Daniel", "Matthew", "Anthony", "Mark",
		"Omar", "Steven", "Andrew", "Paul", "Kenji", "George",
	}
	givenFemale = []string{
		"Mary", "Patricia", "Jennifer", "Linda", "Elizabeth", "Barbara",
		"Susan", "Jessica", "Sarah", "Karen", "Lisa", "Nancy", "Amara",
		"Sandra", "Ashley", "Emily", "Priya", "Michelle", "Carol", "Mei",
	}
	givenNeutral = []string{
		"Alex", "Jordan", "Taylor", "Morgan", "Casey", "Riley", "Avery",
		"Quinn", "Rowan", "Sam",
	}
	familyNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
		"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez",
		"Wilson", "Anderson", "Thomas", "Taylor", "Moore", "Jackson",
		"Martin", "Lee", "Perez", "Thompson", "White", "Harris", "Sanchez",
		"Clark", "Ramirez", "Lewis", "Nguyen",
	}
)

// Generate returns a (family, given) pair consistent with the given gender.
// Male and female patients draw from the matching given-name list; other
// and unknown genders draw from the neutral list.
func (g *NameGenerator) Generate(gender Gender) (family, given string) {
	family = familyNames[g.rng.Intn(len(familyNames))]
	switch gender {
	case GenderMale:
		given = givenMale[g.rng.Intn(len(givenMale))]
	case GenderFemale:
		given = givenFemale[g.rng.Intn(len(givenFemale))]
	default:
		given = givenNeutral[g.rng.Intn(len(givenNeutral))]
	}
	return family, given
}
