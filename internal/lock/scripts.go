package lock

import "github.com/redis/go-redis/v9"

// Key layout (single Redis primary, no cluster hash tags):
//
//	<prefix>:lock:<performance>:<seat>  hash {holder, hold_id, fencing, deadline_ms}
//	<prefix>:hold:<holdId>              hash {performance_id, holder, seats, tokens,
//	                                          created_ms, deadline_ms, extensions}
//
// Both carry a PEXPIRE equal to the hold deadline; the TTL is what cancels an
// abandoned hold.

// acquireScript installs every seat lock and the hold record, or nothing.
// KEYS[1] hold, KEYS[2..] locks. ARGV: holder, hold_id, ttl_ms, now_ms,
// performance_id, seats_csv, tokens_csv, fencing per lock key.
var acquireScript = redis.NewScript(`
	local conflicts = {}
	for i = 2, #KEYS do
		if redis.call('EXISTS', KEYS[i]) == 1 then
			table.insert(conflicts, i - 1)
		end
	end
	if #conflicts > 0 then
		return { 0, conflicts }
	end

	local ttl = tonumber(ARGV[3])
	local deadline = tonumber(ARGV[4]) + ttl
	for i = 2, #KEYS do
		redis.call('HSET', KEYS[i], 'holder', ARGV[1], 'hold_id', ARGV[2], 'fencing', ARGV[i + 6], 'deadline_ms', deadline)
		redis.call('PEXPIRE', KEYS[i], ttl)
	end
	redis.call('HSET', KEYS[1], 'performance_id', ARGV[5], 'holder', ARGV[1], 'seats', ARGV[6], 'tokens', ARGV[7],
		'created_ms', ARGV[4], 'deadline_ms', deadline, 'extensions', 0)
	redis.call('PEXPIRE', KEYS[1], ttl)
	return { 1, deadline }
`)

// extendScript pushes the deadline of a hold and its surviving locks.
// KEYS[1] hold, KEYS[2..] locks. ARGV: holder, hold_id, additional_ms, now_ms,
// max_extensions, max_lifetime_ms.
// Returns {1, deadline} | {-1} expired | {-2} foreign holder | {-3} limit.
var extendScript = redis.NewScript(`
	local h = redis.call('HMGET', KEYS[1], 'holder', 'created_ms', 'deadline_ms', 'extensions')
	if h[1] == false then
		return { -1 }
	end
	if h[1] ~= ARGV[1] then
		return { -2 }
	end
	local ext = tonumber(h[4]) or 0
	if ext >= tonumber(ARGV[5]) then
		return { -3 }
	end

	local now = tonumber(ARGV[4])
	local current = tonumber(h[3]) or now
	local base = math.max(now, current)
	local deadline = math.min(base + tonumber(ARGV[3]), tonumber(h[2]) + tonumber(ARGV[6]))
	if deadline <= current then
		return { -3 }
	end

	local live = {}
	for i = 2, #KEYS do
		local l = redis.call('HMGET', KEYS[i], 'holder', 'hold_id')
		if l[1] == ARGV[1] and l[2] == ARGV[2] then
			table.insert(live, KEYS[i])
		end
	end
	if #live == 0 then
		return { -1 }
	end

	local ttl = deadline - now
	for _, k in ipairs(live) do
		redis.call('HSET', k, 'deadline_ms', deadline)
		redis.call('PEXPIRE', k, ttl)
	end
	redis.call('HSET', KEYS[1], 'deadline_ms', deadline, 'extensions', ext + 1)
	redis.call('PEXPIRE', KEYS[1], ttl)
	return { 1, deadline }
`)

// releaseScript deletes the given locks that belong to holder. Foreign and
// missing locks are left alone. ARGV: holder. Returns the count deleted.
var releaseScript = redis.NewScript(`
	local n = 0
	for i = 1, #KEYS do
		if redis.call('HGET', KEYS[i], 'holder') == ARGV[1] then
			redis.call('DEL', KEYS[i])
			n = n + 1
		end
	end
	return n
`)

// releaseHoldScript deletes a hold record and its own locks.
// KEYS[1] hold, KEYS[2..] locks. ARGV: holder, hold_id.
// Returns count deleted | -1 missing | -2 foreign holder.
var releaseHoldScript = redis.NewScript(`
	local h = redis.call('HGET', KEYS[1], 'holder')
	if h == false then
		return -1
	end
	if h ~= ARGV[1] then
		return -2
	end
	local n = 0
	for i = 2, #KEYS do
		local l = redis.call('HMGET', KEYS[i], 'holder', 'hold_id')
		if l[1] == ARGV[1] and l[2] == ARGV[2] then
			redis.call('DEL', KEYS[i])
			n = n + 1
		end
	end
	redis.call('DEL', KEYS[1])
	return n
`)

// verifyScript reads one lock atomically with its remaining TTL.
// ARGV: holder. Returns {0} absent | {-2} foreign | {1, fencing, deadline_ms, pttl}.
var verifyScript = redis.NewScript(`
	local l = redis.call('HMGET', KEYS[1], 'holder', 'fencing', 'deadline_ms')
	if l[1] == false then
		return { 0 }
	end
	if l[1] ~= ARGV[1] then
		return { -2 }
	end
	return { 1, tonumber(l[2]), tonumber(l[3]), redis.call('PTTL', KEYS[1]) }
`)

// sweepLockScript deletes a lock whose recorded deadline is before the
// cutoff. ARGV: cutoff_ms. Returns 1 when deleted.
var sweepLockScript = redis.NewScript(`
	local d = tonumber(redis.call('HGET', KEYS[1], 'deadline_ms'))
	if d ~= nil and d < tonumber(ARGV[1]) then
		redis.call('DEL', KEYS[1])
		return 1
	end
	return 0
`)

// sweepHoldScript deletes a hold record that is past its deadline or has no
// surviving lock of its own. KEYS[1] hold, KEYS[2..] locks. ARGV: hold_id,
// cutoff_ms. Returns 1 when deleted.
var sweepHoldScript = redis.NewScript(`
	local d = tonumber(redis.call('HGET', KEYS[1], 'deadline_ms'))
	if d == nil then
		return 0
	end
	local stale = d < tonumber(ARGV[2])
	if not stale then
		stale = true
		for i = 2, #KEYS do
			if redis.call('HGET', KEYS[i], 'hold_id') == ARGV[1] then
				stale = false
				break
			end
		end
	end
	if stale then
		redis.call('DEL', KEYS[1])
		return 1
	end
	return 0
`)
