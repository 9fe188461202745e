// Package fake generates a synthetic song catalog and activity log in the
// shape of the Sparkify data sets.
package fake

import (
	"fmt"
	"strings"

	"github.com/sparkify/datalake"
	"github.com/sparkify/datalake/fake/gen"
)

// Track is a catalog record together with the track id naming its file.
type Track struct {
	TrackID string
	datalake.CatalogRecord
}

type artist struct {
	id        string
	name      string
	location  datalake.NullString
	latitude  datalake.NullFloat64
	longitude datalake.NullFloat64
}

// CatalogGenerator generates catalog records. Songs are spread over a fixed
// pool of artists with a zipfian distribution.
type CatalogGenerator struct {
	g       *gen.Generator
	artists []artist
	tracks  []Track
	n       uint64
}

// NewCatalogGenerator gets a new CatalogGenerator with numArtists artists.
// Using the same seed gives the same catalog.
func NewCatalogGenerator(seed int64, numArtists int) *CatalogGenerator {
	if numArtists < 1 {
		numArtists = 1
	}
	c := &CatalogGenerator{g: gen.NewGenerator(seed)}
	for i := 0; i < numArtists; i++ {
		c.artists = append(c.artists, c.genArtist(i))
	}
	return c
}

func (c *CatalogGenerator) genArtist(i int) artist {
	a := artist{
		id:   "AR" + c.g.Hash(16, uint64(i)),
		name: artistName(i),
	}
	if c.g.Chance(0.7) {
		city := cities[c.g.Intn(len(cities))]
		a.location = datalake.Str(city.name)
		if c.g.Chance(0.6) {
			a.latitude = datalake.Float(city.lat)
			a.longitude = datalake.Float(city.lon)
		}
	} else if c.g.Chance(0.5) {
		a.location = datalake.Str("")
	}
	return a
}

// artistName builds a distinct name for every i, many of them starting with
// "The" so that logs can misspell them as "Name, The".
func artistName(i int) string {
	adj := adjectives[i%len(adjectives)]
	noun := nouns[(i/len(adjectives))%len(nouns)]
	name := adj + " " + noun
	if n := i / (len(adjectives) * len(nouns)); n > 0 {
		name = fmt.Sprintf("%s %d", name, n+1)
	}
	if i%3 == 0 {
		name = "The " + name
	}
	return name
}

// Track returns a new catalog record. With a small probability it repeats an
// earlier record exactly, or re-issues an earlier song_id with a different
// title, as real catalogs do.
func (c *CatalogGenerator) Track() Track {
	if len(c.tracks) > 0 && c.g.Chance(0.03) {
		prev := c.tracks[c.g.Intn(len(c.tracks))]
		prev.TrackID = c.trackID()
		if c.g.Chance(0.5) {
			prev.Title = datalake.Str(prev.Title.String + " (Remastered)")
		}
		c.tracks = append(c.tracks, prev)
		return prev
	}
	a := c.artists[c.g.Uint64(len(c.artists))]
	t := Track{
		TrackID: c.trackID(),
		CatalogRecord: datalake.CatalogRecord{
			SongID:          "SO" + c.g.Hash(16, c.n),
			Title:           datalake.Str(c.title()),
			ArtistID:        a.id,
			ArtistName:      datalake.Str(a.name),
			ArtistLocation:  a.location,
			ArtistLatitude:  a.latitude,
			ArtistLongitude: a.longitude,
			Duration:        float64(int(c.g.Float64(60, 600)*1e5)) / 1e5,
		},
	}
	if c.g.Chance(0.55) {
		t.Year = int64(1950 + c.g.Intn(61))
	}
	c.tracks = append(c.tracks, t)
	return t
}

func (c *CatalogGenerator) trackID() string {
	c.n++
	return "TR" + c.g.Hash(16, c.n<<1|1)
}

func (c *CatalogGenerator) title() string {
	words := 1 + c.g.Intn(4)
	parts := make([]string, words)
	for i := range parts {
		w := titleWords[c.g.Intn(len(titleWords))]
		parts[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(parts, " ")
}

var adjectives = []string{"Silver", "Velvet", "Electric", "Midnight", "Broken", "Golden", "Crimson", "Lonely", "Wild", "Hollow", "Neon", "Quiet"}

var nouns = []string{"Beatles", "Pilots", "Harbors", "Foxes", "Rivers", "Engines", "Saints", "Ghosts", "Lanterns", "Wolves", "Comets", "Sparrows", "Kings", "Tides"}

var titleWords = []string{"love", "night", "heart", "fire", "rain", "dance", "dream", "home", "blue", "road", "light", "summer", "falling", "gone", "city", "shadow", "again", "forever", "you", "me", "tonight", "river", "stars", "gold"}

var cities = []struct {
	name     string
	lat, lon float64
}{
	{"California - LA", 34.05349, -118.24532},
	{"Memphis, TN", 35.14968, -90.04892},
	{"Hamilton, Ohio", 39.39992, -84.56164},
	{"London, England", 51.50632, -0.12714},
	{"New York, NY", 40.71455, -74.00712},
	{"Detroit, MI", 42.33168, -83.04792},
	{"Stockholm, Sweden", 59.32893, 18.06491},
	{"Kingston, Jamaica", 17.99702, -76.79358},
	{"Seattle, WA", 47.60356, -122.32944},
	{"Paris, France", 48.85692, 2.34121},
}
