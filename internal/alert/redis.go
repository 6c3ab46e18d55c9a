package alert

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// Evaler abstracts the minimal Redis surface the dedup backstop needs,
// mirroring persistence.RedisEvaler in the teacher repo.
type Evaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// GoRedisEvaler wraps github.com/redis/go-redis/v9.
type GoRedisEvaler struct{ c *redis.Client }

// NewGoRedisEvaler dials addr lazily (go-redis connects on first use).
func NewGoRedisEvaler(addr string) *GoRedisEvaler {
	return &GoRedisEvaler{c: redis.NewClient(&redis.Options{Addr: addr})}
}

func (g *GoRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return g.c.Eval(ctx, script, keys, args...).Result()
}

// fingerprintMarkerScript claims a fingerprint exactly once across all
// engine instances in the fleet, adapted from persistence.redisLuaScript:
// the teacher's script applies a counter delta behind a SETNX marker;
// this one instead guards first-writer-wins on an alert id.
const fingerprintMarkerScript = `
local marker = KEYS[1]
local set = redis.call('SETNX', marker, ARGV[1])
if set == 1 then
  return ARGV[1]
else
  return redis.call('GET', marker)
end
`

// CrossInstanceDedup claims a fingerprint across process instances,
// backstopping the single-process mutex in Engine per spec.md §4.3's
// "store MUST enforce a unique fingerprint constraint" requirement when
// the backing Store is itself in-memory-per-instance.
type CrossInstanceDedup struct {
	client Evaler
}

// NewCrossInstanceDedup wraps an Evaler (a real Redis client or a fake
// for tests).
func NewCrossInstanceDedup(client Evaler) *CrossInstanceDedup {
	return &CrossInstanceDedup{client: client}
}

func markerKey(fingerprint string) string { return fmt.Sprintf("alert:fp:%s", fingerprint) }

// Claim attempts to claim fingerprint for id. It returns the winning id:
// either id itself (this caller won) or the id of a prior winner.
func (d *CrossInstanceDedup) Claim(ctx context.Context, fingerprint, id string) (winnerID string, err error) {
	res, err := d.client.Eval(ctx, fingerprintMarkerScript, []string{markerKey(fingerprint)}, id)
	if err != nil {
		return "", fmt.Errorf("claim fingerprint %s: %w", fingerprint, err)
	}
	switch v := res.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return id, nil
	}
}
