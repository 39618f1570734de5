package memory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/andressep95/nfc-access-service/internal/domain"
)

// Seed is the file format accepted by LoadSeed
type Seed struct {
	Students []struct {
		ID       string `json:"id"`
		Inactive bool   `json:"inactive"`
		domain.StudentProfile
	} `json:"students"`
	Artists []struct {
		ID       string `json:"id"`
		Inactive bool   `json:"inactive"`
		domain.ArtistProfile
	} `json:"artists"`
}

// LoadSeed reads a JSON seed file into the repository and returns how many
// entities were added.
func (r *EntityRepository) LoadSeed(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return 0, fmt.Errorf("failed to decode seed file: %w", err)
	}

	n := 0
	for _, s := range seed.Students {
		ref, err := domain.StudentRef(s.ID)
		if err != nil {
			return n, fmt.Errorf("seed student %q: %w", s.ID, err)
		}
		r.PutStudent(ref, s.StudentProfile, !s.Inactive)
		n++
	}
	for _, a := range seed.Artists {
		ref, err := domain.ArtistRef(a.ID)
		if err != nil {
			return n, fmt.Errorf("seed artist %q: %w", a.ID, err)
		}
		r.PutArtist(ref, a.ArtistProfile, !a.Inactive)
		n++
	}
	return n, nil
}
