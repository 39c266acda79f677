package ratelimit

// AdmitScript is the Lua implementation of Store.Admit for Redis compatible stores.
//
//	KEYS[1] window sorted set
//	ARGV[1] entry timestamp in microseconds (score)
//	ARGV[2] clear-before score, inclusive
//	ARGV[3] limit
//	ARGV[4] window in seconds (key TTL)
//	ARGV[5] entry member
//
// Scores are passed as strings so they reach ZADD and ZREMRANGEBYSCORE
// without a round trip through Lua floats.
const AdmitScript = `
local key = KEYS[1]
local now = ARGV[1]
local clear_before = ARGV[2]
local limit = tonumber(ARGV[3])
local window = ARGV[4]
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', clear_before)

local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, member)
end
redis.call('EXPIRE', key, window)

return count
`
