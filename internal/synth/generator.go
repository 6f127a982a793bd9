// Package synth generates synthetic authentication traffic for load and
// detection testing.
package synth

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Config shapes the generated traffic.
type Config struct {
	Seed  uint64
	Users int
	// Day is the calendar day events are spread over, in its own location.
	Day              time.Time
	Logins           int
	BruteForceBursts int
	BurstSize        int
	BurstSpacing     time.Duration
	NightAccess      int
	Hosts            []string
}

// Record is one synthetic event in the flat authlog shape.
type Record struct {
	Timestamp time.Time `json:"@timestamp"`
	EventID   string    `json:"event_id"`
	Identity  string    `json:"identity"`
	Success   *bool     `json:"success,omitempty"`
	Action    string    `json:"action"`
	SourceIP  string    `json:"source_ip"`
	UserAgent string    `json:"user_agent"`
	Host      string    `json:"host"`
}

// Marshal encodes the record as one JSON line payload.
func (r Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// BurstTargets are the account names brute-force bursts aim at.
var BurstTargets = []string{"admin", "root", "oracle", "postgres", "guest", "deploy"}

type user struct {
	name      string
	ip        string
	userAgent string
}

// Generator builds deterministic traffic for a seed.
type Generator struct {
	faker *gofakeit.Faker
	cfg   Config
	users []user
}

// NewGenerator creates a generator.
func NewGenerator(cfg Config) *Generator {
	if cfg.Users <= 0 {
		cfg.Users = 20
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 5
	}
	if cfg.BurstSpacing <= 0 {
		cfg.BurstSpacing = 5 * time.Second
	}
	if len(cfg.Hosts) == 0 {
		cfg.Hosts = []string{"bastion-01", "vpn-gw", "files-02"}
	}
	if cfg.Day.IsZero() {
		cfg.Day = time.Now()
	}
	y, m, d := cfg.Day.Date()
	cfg.Day = time.Date(y, m, d, 0, 0, 0, 0, cfg.Day.Location())

	faker := gofakeit.New(cfg.Seed)
	users := make([]user, cfg.Users)
	for i := range users {
		users[i] = user{
			name:      faker.Username(),
			ip:        faker.IPv4Address(),
			userAgent: faker.UserAgent(),
		}
	}
	return &Generator{faker: faker, cfg: cfg, users: users}
}

// Generate returns all records ordered by timestamp.
func (g *Generator) Generate() []Record {
	var out []Record
	for i := 0; i < g.cfg.Logins; i++ {
		out = append(out, g.login())
	}
	for i := 0; i < g.cfg.BruteForceBursts; i++ {
		out = append(out, g.burst()...)
	}
	for i := 0; i < g.cfg.NightAccess; i++ {
		out = append(out, g.nightAccess())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// login is a daytime attempt by a known user from their usual address.
func (g *Generator) login() Record {
	u := g.users[g.faker.IntRange(0, len(g.users)-1)]
	ok := g.faker.IntRange(1, 10) > 1
	return Record{
		Timestamp: g.at(g.faker.IntRange(8, 18)),
		EventID:   g.faker.UUID(),
		Identity:  u.name,
		Success:   &ok,
		Action:    "login",
		SourceIP:  u.ip,
		UserAgent: u.userAgent,
		Host:      g.host(),
	}
}

func (g *Generator) burst() []Record {
	target := g.faker.RandomString(BurstTargets)
	ip := g.faker.IPv4Address()
	ua := g.faker.UserAgent()
	host := g.host()
	start := g.at(g.faker.IntRange(7, 22))

	out := make([]Record, g.cfg.BurstSize)
	for i := range out {
		failed := false
		out[i] = Record{
			Timestamp: start.Add(time.Duration(i) * g.cfg.BurstSpacing),
			EventID:   g.faker.UUID(),
			Identity:  target,
			Success:   &failed,
			Action:    "login",
			SourceIP:  ip,
			UserAgent: ua,
			Host:      host,
		}
	}
	return out
}

// nightAccess is a resource access with no credential check between 01:00
// and 05:59.
func (g *Generator) nightAccess() Record {
	u := g.users[g.faker.IntRange(0, len(g.users)-1)]
	return Record{
		Timestamp: g.at(g.faker.IntRange(1, 5)),
		EventID:   g.faker.UUID(),
		Identity:  u.name,
		Action:    g.faker.RandomString([]string{"file_read", "db_query", "vpn_connect"}),
		SourceIP:  u.ip,
		UserAgent: u.userAgent,
		Host:      g.host(),
	}
}

func (g *Generator) at(hour int) time.Time {
	offset := time.Duration(hour)*time.Hour +
		time.Duration(g.faker.IntRange(0, 59))*time.Minute +
		time.Duration(g.faker.IntRange(0, 59))*time.Second
	return g.cfg.Day.Add(offset)
}

func (g *Generator) host() string {
	return g.faker.RandomString(g.cfg.Hosts)
}
