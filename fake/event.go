package fake

import (
	"strconv"
	"strings"
	"time"

	"github.com/sparkify/datalake"
	"github.com/sparkify/datalake/fake/gen"
)

type user struct {
	id           datalake.UserID
	firstName    string
	lastName     string
	gender       string
	level        string
	location     string
	userAgent    string
	registration float64
}

// EventGenerator generates activity log sessions over a catalog.
type EventGenerator struct {
	g       *gen.Generator
	tracks  []Track
	users   []*user
	session int64
	clock   time.Time

	// MissRate is the probability that a played song's artist is logged in a
	// form no catalog artist has.
	MissRate float64
}

// NewEventGenerator gets a new EventGenerator playing songs of tracks for
// numUsers users, starting at start.
func NewEventGenerator(seed int64, tracks []Track, numUsers int, start time.Time) *EventGenerator {
	if numUsers < 1 {
		numUsers = 1
	}
	e := &EventGenerator{
		g:        gen.NewGenerator(seed),
		tracks:   tracks,
		clock:    start,
		MissRate: 0.05,
	}
	perm := gen.NewPermutationGenerator(int64(numUsers)*4, int64(uint64(seed)%1000)+1)
	for i := 0; i < numUsers; i++ {
		e.users = append(e.users, e.genUser(perm.Permute(int64(i))+1))
	}
	return e
}

func (e *EventGenerator) genUser(id int64) *user {
	u := &user{
		id:           datalake.UserID(strconv.FormatInt(id, 10)),
		firstName:    firstNames[e.g.Intn(len(firstNames))],
		lastName:     lastNames[e.g.Intn(len(lastNames))],
		gender:       "F",
		level:        "free",
		location:     e.g.Pick(locations),
		userAgent:    userAgents[e.g.Intn(len(userAgents))],
		registration: float64(e.clock.Add(-time.Duration(e.g.Intn(90*24)) * time.Hour).UnixMilli()),
	}
	if e.g.Chance(0.5) {
		u.gender = "M"
	}
	if e.g.Chance(0.2) {
		u.level = "paid"
	}
	return u
}

// Session returns the events of one listening session. Sessions advance the
// generator's clock, so consecutive sessions never overlap.
func (e *EventGenerator) Session() []datalake.ActivityEvent {
	e.session++
	e.clock = e.clock.Add(time.Duration(1+e.g.Intn(3600)) * time.Second)
	if len(e.tracks) == 0 || e.g.Chance(0.05) {
		return []datalake.ActivityEvent{e.loggedOut()}
	}
	u := e.users[e.g.Uint64(len(e.users))]
	n := 1 + e.g.Intn(30)
	events := make([]datalake.ActivityEvent, 0, n+1)
	for item := 0; item < n; item++ {
		ev := e.base(u, item)
		switch r := e.g.Float64(0, 1); {
		case item == 0:
			ev.Page = "Home"
		case r < 0.8:
			e.play(&ev)
		case r < 0.85 && u.level == "free":
			ev.Page = "Submit Upgrade"
			ev.Method = "PUT"
			ev.Status = 307
			u.level = "paid"
		case r < 0.9:
			ev.Page = "Thumbs Up"
			ev.Method = "PUT"
			ev.Status = 307
		case r < 0.95:
			ev.Page = "Settings"
		default:
			ev.Page = "About"
		}
		events = append(events, ev)
		e.clock = e.clock.Add(time.Duration(1+e.g.Intn(30)) * time.Second)
	}
	if e.g.Chance(0.3) {
		ev := e.base(u, n)
		ev.Page = "Logout"
		ev.Method = "PUT"
		ev.Status = 307
		events = append(events, ev)
	}
	return events
}

func (e *EventGenerator) base(u *user, item int) datalake.ActivityEvent {
	return datalake.ActivityEvent{
		Ts:            e.clock.UnixMilli(),
		FirstName:     datalake.Str(u.firstName),
		LastName:      datalake.Str(u.lastName),
		Gender:        datalake.Str(u.gender),
		Level:         u.level,
		UserID:        u.id,
		SessionID:     e.session,
		Location:      datalake.Str(u.location),
		UserAgent:     datalake.Str(u.userAgent),
		Auth:          "Logged In",
		ItemInSession: int64(item),
		Method:        "GET",
		Status:        200,
		Registration:  datalake.Float(u.registration),
	}
}

func (e *EventGenerator) play(ev *datalake.ActivityEvent) {
	t := e.tracks[e.g.Uint64(len(e.tracks))]
	ev.Page = datalake.PlayPage
	ev.Method = "PUT"
	ev.Artist = datalake.Str(t.ArtistName.String)
	ev.Song = datalake.Str(t.Title.String)
	ev.Duration = datalake.Float(t.Duration)
	if e.g.Chance(e.MissRate) {
		ev.Artist = datalake.Str(misspell(t.ArtistName.String))
	}
	e.clock = e.clock.Add(time.Duration(t.Duration * float64(time.Second)))
}

// misspell turns "The Name" into "Name, The" and anything else into its
// upper case form.
func misspell(name string) string {
	if rest, ok := strings.CutPrefix(name, "The "); ok {
		return rest + ", The"
	}
	return strings.ToUpper(name)
}

func (e *EventGenerator) loggedOut() datalake.ActivityEvent {
	return datalake.ActivityEvent{
		Ts:        e.clock.UnixMilli(),
		Page:      "Home",
		Level:     "free",
		SessionID: e.session,
		Auth:      "Logged Out",
		Method:    "GET",
		Status:    200,
	}
}

var firstNames = []string{"Kaylee", "Walter", "Ryan", "Sylvie", "Jacob", "Lily", "Tegan", "Chloe", "Aleena", "Jayden", "Mohammad", "Matthew", "Kate", "Stefany", "Layla", "Avery"}

var lastNames = []string{"Summers", "Frye", "Smith", "Cruz", "Klein", "Koch", "Levine", "Cuevas", "Kirby", "Bell", "Rodriguez", "Jones", "Harrell", "White", "Griffin", "Watkins"}

var locations = []string{
	"San Francisco-Oakland-Hayward, CA",
	"Lansing-East Lansing, MI",
	"Portland-South Portland, ME",
	"New York-Newark-Jersey City, NY-NJ-PA",
	"Atlanta-Sandy Springs-Roswell, GA",
	"Chicago-Naperville-Elgin, IL-IN-WI",
	"Phoenix-Mesa-Scottsdale, AZ",
	"Houston-The Woodlands-Sugar Land, TX",
}

var userAgents = []string{
	`"Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/36.0.1985.143 Safari/537.36"`,
	`"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_9_4) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/36.0.1985.143 Safari/537.36"`,
	`Mozilla/5.0 (Windows NT 6.1; WOW64; rv:31.0) Gecko/20100101 Firefox/31.0`,
	`"Mozilla/5.0 (iPhone; CPU iPhone OS 7_1_2 like Mac OS X) AppleWebKit/537.51.2 (KHTML, like Gecko) Version/7.0 Mobile/11D257 Safari/9537.53"`,
}
