package redisq

import "github.com/redis/go-redis/v9"

// KEYS: entry, wait, delayed, completed, failed
// ARGV: id, kind, data, delayMs, nowMs, roc, rof
// Returns 0 deduped, 1 created, 2 stored as replacement of an active entry.
var addScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state == 'waiting' or state == 'delayed' then
  return 0
end
if state == 'active' then
  redis.call('HSET', KEYS[1], 'next', '1', 'next_kind', ARGV[2], 'next_data', ARGV[3],
    'next_delay', ARGV[4], 'next_roc', ARGV[6], 'next_rof', ARGV[7])
  return 2
end
if state then
  redis.call('ZREM', KEYS[4], ARGV[1])
  redis.call('ZREM', KEYS[5], ARGV[1])
  redis.call('DEL', KEYS[1])
end
redis.call('HSET', KEYS[1], 'id', ARGV[1], 'kind', ARGV[2], 'data', ARGV[3],
  'delay', ARGV[4], 'ts', ARGV[5], 'roc', ARGV[6], 'rof', ARGV[7], 'attempts', 0)
local delay = tonumber(ARGV[4])
if delay > 0 then
  redis.call('HSET', KEYS[1], 'state', 'delayed')
  redis.call('ZADD', KEYS[3], tonumber(ARGV[5]) + delay, ARGV[1])
else
  redis.call('HSET', KEYS[1], 'state', 'waiting')
  redis.call('RPUSH', KEYS[2], ARGV[1])
end
return 1
`)

// KEYS: wait, active
// ARGV: nowMs, leaseUntilMs, entry key prefix, lease token
// Returns the claimed entry hash as a flat field/value list, or nil.
var claimScript = redis.NewScript(`
while true do
  local id = redis.call('LPOP', KEYS[1])
  if not id then
    return false
  end
  local key = ARGV[3] .. id
  if redis.call('HGET', key, 'state') == 'waiting' then
    redis.call('ZADD', KEYS[2], ARGV[2], id)
    redis.call('HSET', key, 'state', 'active', 'processed_on', ARGV[1], 'lease', ARGV[4])
    redis.call('HINCRBY', key, 'attempts', 1)
    return redis.call('HGETALL', key)
  end
end
`)

// KEYS: entry, active
// ARGV: id, lease token, leaseUntilMs
// Returns 1 extended, 0 when the lease belongs to another claim or expired.
var extendScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'lease') ~= ARGV[2] then
  return 0
end
if not redis.call('ZSCORE', KEYS[2], ARGV[1]) then
  return 0
end
redis.call('ZADD', KEYS[2], 'XX', ARGV[3], ARGV[1])
return 1
`)

// KEYS: entry, active, wait, delayed, completed, failed
// ARGV: id, ok (1/0), nowMs, error message, lease token
// Returns -1 lease lost, 0 removed, 1 retained, 2 replacement armed.
var completeScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'lease') ~= ARGV[5] then
  return -1
end
if redis.call('ZREM', KEYS[2], ARGV[1]) == 0 then
  return -1
end
if redis.call('HGET', KEYS[1], 'next') then
  local n = redis.call('HMGET', KEYS[1], 'next_kind', 'next_data', 'next_delay', 'next_roc', 'next_rof')
  redis.call('HDEL', KEYS[1], 'next', 'next_kind', 'next_data', 'next_delay', 'next_roc', 'next_rof',
    'processed_on', 'finished_on', 'error', 'lease')
  redis.call('HSET', KEYS[1], 'kind', n[1], 'data', n[2], 'delay', n[3], 'ts', ARGV[3],
    'roc', n[4], 'rof', n[5], 'attempts', 0)
  local delay = tonumber(n[3])
  if delay > 0 then
    redis.call('HSET', KEYS[1], 'state', 'delayed')
    redis.call('ZADD', KEYS[4], tonumber(ARGV[3]) + delay, ARGV[1])
  else
    redis.call('HSET', KEYS[1], 'state', 'waiting')
    redis.call('RPUSH', KEYS[3], ARGV[1])
  end
  return 2
end
local policy, set, state = 'roc', KEYS[5], 'completed'
if ARGV[2] ~= '1' then
  policy, set, state = 'rof', KEYS[6], 'failed'
end
if redis.call('HGET', KEYS[1], policy) == 'r' then
  redis.call('DEL', KEYS[1])
  return 0
end
redis.call('HDEL', KEYS[1], 'lease')
redis.call('HSET', KEYS[1], 'state', state, 'finished_on', ARGV[3], 'error', ARGV[4])
redis.call('ZADD', set, ARGV[3], ARGV[1])
return 1
`)

// KEYS: finished set, entry
// ARGV: id
var trimScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  redis.call('ZREM', KEYS[1], ARGV[1])
  redis.call('DEL', KEYS[2])
  return 1
end
return 0
`)

// KEYS: delayed, wait, active
// ARGV: nowMs, limit, entry key prefix
var promoteScript = redis.NewScript(`
local moved = 0
for _, set in ipairs({KEYS[1], KEYS[3]}) do
  local ids = redis.call('ZRANGEBYSCORE', set, '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
  for _, id in ipairs(ids) do
    redis.call('ZREM', set, id)
    local key = ARGV[3] .. id
    if redis.call('EXISTS', key) == 1 then
      redis.call('HSET', key, 'state', 'waiting')
      redis.call('RPUSH', KEYS[2], id)
      moved = moved + 1
    end
  end
end
return moved
`)

// KEYS: entry, wait, delayed
// ARGV: id, nowMs, delayMs
var rescheduleScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'state') ~= 'delayed' then
  return 0
end
redis.call('HSET', KEYS[1], 'ts', ARGV[2], 'delay', ARGV[3])
local delay = tonumber(ARGV[3])
if delay > 0 then
  redis.call('ZADD', KEYS[3], tonumber(ARGV[2]) + delay, ARGV[1])
else
  redis.call('ZREM', KEYS[3], ARGV[1])
  redis.call('HSET', KEYS[1], 'state', 'waiting')
  redis.call('RPUSH', KEYS[2], ARGV[1])
end
return 1
`)

// KEYS: list
// ARGV: expected head
var ackHeadScript = redis.NewScript(`
if redis.call('LINDEX', KEYS[1], 0) == ARGV[1] then
  redis.call('LPOP', KEYS[1])
  return 1
end
return 0
`)
