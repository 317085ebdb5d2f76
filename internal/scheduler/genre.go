package scheduler

import (
	"math/rand/v2"
	"sync"
)

// GenrePick is the genre assigned to a recommendation or new-release cycle.
type GenrePick struct {
	Genre     string   `json:"genre"`
	Subgenres []string `json:"subgenres,omitempty"`
}

var rotationGenres = []string{
	"Classical", "Rock", "Electronic", "Hip Hop", "World Music",
	"Experimental", "Metal", "Jazz", "Techno", "Punk", "Indie",
}

var subgenres = map[string][]string{
	"Classical":    {"orchestral", "piano", "chamber music", "opera", "symphony", "baroque", "modern classical"},
	"Jazz":         {"bebop", "fusion", "smooth jazz", "big band", "swing", "modal jazz", "cool jazz"},
	"Rock":         {"classic rock", "indie rock", "punk", "hard rock", "prog rock", "alternative", "psychedelic"},
	"Electronic":   {"techno", "house", "trance", "ambient", "EDM", "drum and bass", "synthwave", "dubstep"},
	"Hip Hop":      {"old school", "trap", "conscious rap", "instrumental", "boom bap", "southern", "west coast"},
	"World Music":  {"afrobeat", "latin", "reggae", "k-pop", "celtic", "indian classical", "flamenco"},
	"Experimental": {"avant-garde", "noise", "fusion genres", "art rock", "musique concrète"},
	"Metal":        {"heavy metal", "death metal", "black metal", "metalcore", "progressive metal", "doom metal"},
}

// GenreRotation cycles through genres independently for recommendations and
// new releases, decorating each pick with a few random subgenres.
type GenreRotation struct {
	// IntN returns a random number in [0, n). Nil uses math/rand/v2.
	IntN func(n int) int

	mu             sync.Mutex
	recommendation int
	newRelease     int
}

// NextRecommendation returns the next recommendation genre with up to three
// subgenres.
func (g *GenreRotation) NextRecommendation() GenrePick {
	g.mu.Lock()
	defer g.mu.Unlock()
	genre := rotationGenres[g.recommendation%len(rotationGenres)]
	g.recommendation++
	return GenrePick{Genre: genre, Subgenres: g.sample(subgenres[genre], 3)}
}

// NextNewRelease returns the next new-release genre with up to two
// subgenres.
func (g *GenreRotation) NextNewRelease() GenrePick {
	g.mu.Lock()
	defer g.mu.Unlock()
	genre := rotationGenres[g.newRelease%len(rotationGenres)]
	g.newRelease++
	return GenrePick{Genre: genre, Subgenres: g.sample(subgenres[genre], 2)}
}

// sample draws k distinct elements with a partial Fisher-Yates shuffle.
func (g *GenreRotation) sample(from []string, k int) []string {
	if len(from) == 0 {
		return nil
	}
	intN := g.IntN
	if intN == nil {
		intN = rand.IntN
	}
	pool := append([]string(nil), from...)
	k = min(k, len(pool))
	for i := 0; i < k; i++ {
		j := i + intN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}
