package incidentstate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"riskwatch/pkg/models"
)

// RedisConfig configures Redis access for incident-state persistence.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Incident holds compact per-identity alert counters.
type Incident struct {
	Identity            string    `json:"identity"`
	AlertCount          int64     `json:"alert_count"`
	BruteForceCount     int64     `json:"brute_force_count"`
	UnusualTimeCount    int64     `json:"unusual_time_count"`
	RuleMatchCount      int64     `json:"rule_match_count"`
	LastKind            string    `json:"last_kind,omitempty"`
	LastHost            string    `json:"last_host,omitempty"`
	LastSourceIP        string    `json:"last_source_ip,omitempty"`
	FirstAlertTimestamp time.Time `json:"first_alert_ts,omitempty"`
	LastAlertTimestamp  time.Time `json:"last_alert_ts,omitempty"`
	UpdatedAt           time.Time `json:"updated_at,omitempty"`
}

// Score weighs brute force above rule matches above off-hours access.
func (i Incident) Score() int64 {
	return 5*i.BruteForceCount + 3*i.RuleMatchCount + i.UnusualTimeCount
}

// RedisStore manages writer/reader operations over incident keys.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed incident store.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "riskwatch:incidents"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis incident-state: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// WriteAlerts folds a batch of alerts into the per-identity counters.
func (s *RedisStore) WriteAlerts(alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	ctx := context.Background()
	pipe := s.client.Pipeline()
	nowUnix := time.Now().Unix()

	queued := 0
	for _, alert := range alerts {
		if alert == nil {
			continue
		}
		identity := strings.TrimSpace(alert.Identity)
		if identity == "" {
			identity = "unknown"
		}
		ts := float64(alert.WindowEnd.Unix())
		key := s.identityKey(identity)

		pipe.HSet(ctx, key,
			"identity", identity,
			"last_kind", alert.Kind,
			"last_host", alert.Hostname,
			"last_source_ip", alert.SourceIP,
			"updated_at", strconv.FormatInt(nowUnix, 10),
		)
		pipe.HIncrBy(ctx, key, "alert_count", 1)
		if field := counterField(alert.Kind); field != "" {
			pipe.HIncrBy(ctx, key, field, 1)
		}

		pipe.ZAddArgs(ctx, s.firstSetKey(), redis.ZAddArgs{LT: true, Members: []redis.Z{{Score: ts, Member: identity}}})
		pipe.ZAddArgs(ctx, s.lastSetKey(), redis.ZAddArgs{GT: true, Members: []redis.Z{{Score: ts, Member: identity}}})
		pipe.ZAdd(ctx, s.dirtySetKey(), redis.Z{Score: float64(nowUnix), Member: identity})
		queued++
	}
	if queued == 0 {
		return nil
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update incident-state redis keys: %w", err)
	}
	return nil
}

// FetchDirtySince returns incidents updated at or after since.
func (s *RedisStore) FetchDirtySince(ctx context.Context, since time.Time, limit int64) ([]Incident, error) {
	if limit <= 0 {
		limit = 1000
	}
	members, err := s.client.ZRangeByScore(ctx, s.dirtySetKey(), &redis.ZRangeBy{
		Min:    strconv.FormatInt(since.Unix(), 10),
		Max:    "+inf",
		Offset: 0,
		Count:  limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read dirty incident members: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	incidents := make([]Incident, 0, len(members))
	for _, identity := range members {
		if identity == "" {
			continue
		}
		hash, err := s.client.HGetAll(ctx, s.identityKey(identity)).Result()
		if err != nil || len(hash) == 0 {
			continue
		}
		first, _ := s.client.ZScore(ctx, s.firstSetKey(), identity).Result()
		last, _ := s.client.ZScore(ctx, s.lastSetKey(), identity).Result()
		incidents = append(incidents, incidentFromHash(identity, hash, first, last))
	}
	return incidents, nil
}

// Rank sorts incidents by score, then by most recent alert.
func Rank(incidents []Incident) []Incident {
	out := append([]Incident(nil), incidents...)
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Score(), out[j].Score()
		if si != sj {
			return si > sj
		}
		return out[i].LastAlertTimestamp.After(out[j].LastAlertTimestamp)
	})
	return out
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func incidentFromHash(identity string, hash map[string]string, first, last float64) Incident {
	inc := Incident{
		Identity:     identity,
		LastKind:     hash["last_kind"],
		LastHost:     hash["last_host"],
		LastSourceIP: hash["last_source_ip"],
	}
	inc.AlertCount, _ = strconv.ParseInt(hash["alert_count"], 10, 64)
	inc.BruteForceCount, _ = strconv.ParseInt(hash["brute_force_count"], 10, 64)
	inc.UnusualTimeCount, _ = strconv.ParseInt(hash["unusual_time_count"], 10, 64)
	inc.RuleMatchCount, _ = strconv.ParseInt(hash["rule_match_count"], 10, 64)

	if updatedUnix, _ := strconv.ParseInt(hash["updated_at"], 10, 64); updatedUnix > 0 {
		inc.UpdatedAt = time.Unix(updatedUnix, 0).UTC()
	}
	if first > 0 {
		inc.FirstAlertTimestamp = time.Unix(int64(first), 0).UTC()
	}
	if last > 0 {
		inc.LastAlertTimestamp = time.Unix(int64(last), 0).UTC()
	}
	return inc
}

func counterField(kind string) string {
	switch kind {
	case models.AlertKindBruteForce:
		return "brute_force_count"
	case models.AlertKindUnusualAccessTime:
		return "unusual_time_count"
	case models.AlertKindRuleMatch:
		return "rule_match_count"
	default:
		return ""
	}
}

func (s *RedisStore) identityKey(identity string) string {
	return s.prefix + ":identity:" + identity
}

func (s *RedisStore) firstSetKey() string {
	return s.prefix + ":first"
}

func (s *RedisStore) lastSetKey() string {
	return s.prefix + ":last"
}

func (s *RedisStore) dirtySetKey() string {
	return s.prefix + ":dirty"
}
