package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	codeRecordVersionV1 = 1

	maxPayloadLen = 65535
)

var (
	ErrCodeNotFound         = errors.New("code record not found")
	ErrCodeExpired          = errors.New("code record expired")
	ErrCodeMismatch         = errors.New("code mismatch")
	ErrCodeAttemptsExceeded = errors.New("code attempts exceeded")
	ErrRedisUnavailable     = errors.New("code store redis unavailable")
)

// consumeCodeLua atomically performs GET→validate→DEL/SET on a code record.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = max attempts (int string)
// ARGV[3] = current unix timestamp (int string)
//
// Returns:
//
//	record bytes on success
//	error string: "not_found", "expired", "attempts_exceeded", "code_mismatch"
var consumeCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowUnix = tonumber(ARGV[3])

-- Minimal binary decode: version(1) attempts(2 big-endian) expiresAt(8 big-endian) ...
local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local a0 = string.byte(data, 2)
local a1 = string.byte(data, 3)
local attempts = a0 * 256 + a1

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 4, 11)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if nowUnix > expiresAt then
  redis.call('DEL', KEYS[1])
  return {err='expired'}
end

-- Code hash sits after version(1)+attempts(2)+expiresAt(8)+payloadLen(2)+payload(variable)
local payloadLen = string.byte(data, 12) * 256 + string.byte(data, 13)
local hashOffset = 14 + payloadLen
local storedHash = string.sub(data, hashOffset, hashOffset + 31)

if storedHash ~= providedHash then
  attempts = attempts + 1
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return {err='attempts_exceeded'}
  end
  -- Rewrite attempts bytes in the record
  local newA0 = math.floor(attempts / 256)
  local newA1 = attempts % 256
  local newData = string.sub(data, 1, 1) .. string.char(newA0, newA1) .. string.sub(data, 4)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='code_mismatch'}
end

redis.call('DEL', KEYS[1])
return data
`)

// CodeRecord is the persisted shape of an issued verification code.
// Payload carries flow-specific state that must survive until the code
// is consumed, such as a pending TOTP secret during 2FA enrollment.
type CodeRecord struct {
	CodeHash  [32]byte
	ExpiresAt int64
	Attempts  uint16
	Payload   string
}

type CodeStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewCodeStore(redisClient redis.UniversalClient, prefix string) *CodeStore {
	if prefix == "" {
		prefix = "lvc"
	}
	return &CodeStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *CodeStore) key(purpose, userID string) string {
	return s.prefix + ":" + purpose + ":" + userID
}

// Save persists a code record under (purpose, userID), replacing any
// record already live for that pair. The Redis TTL is ttl plus grace;
// the record's logical expiry stays at ttl so late consumers observe
// ErrCodeExpired instead of ErrCodeNotFound during the grace window.
func (s *CodeStore) Save(
	ctx context.Context,
	purpose, userID string,
	record *CodeRecord,
	ttl, grace time.Duration,
) error {
	encoded, err := encodeCodeRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(purpose, userID), encoded, ttl+grace).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Consume atomically validates and burns the code for (purpose, userID).
// On a hash match the record is deleted and returned. On a mismatch the
// attempt counter is incremented in place; reaching maxAttempts deletes
// the record and returns ErrCodeAttemptsExceeded.
func (s *CodeStore) Consume(
	ctx context.Context,
	purpose, userID string,
	providedHash [32]byte,
	maxAttempts int,
) (*CodeRecord, error) {
	key := s.key(purpose, userID)
	nowUnix := time.Now().Unix()

	result, err := consumeCodeLua.Run(ctx, s.redis,
		[]string{key},
		string(providedHash[:]),
		maxAttempts,
		nowUnix,
	).Result()

	if err != nil {
		msg := err.Error()
		switch msg {
		case "not_found":
			return nil, ErrCodeNotFound
		case "expired":
			return nil, ErrCodeExpired
		case "attempts_exceeded":
			return nil, ErrCodeAttemptsExceeded
		case "code_mismatch":
			return nil, ErrCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrRedisUnavailable)
	}

	record, decErr := decodeCodeRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, decErr)
	}

	// Final constant-time comparison in Go as defense-in-depth
	// (Lua already checked, but Lua string comparison is not constant-time)
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrCodeMismatch
	}

	return record, nil
}

// Drop removes the live record for (purpose, userID) if one exists.
func (s *CodeStore) Drop(ctx context.Context, purpose, userID string) error {
	if err := s.redis.Del(ctx, s.key(purpose, userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// PurgeUser removes every live record for userID across the given
// purposes. Used when an account is deleted.
func (s *CodeStore) PurgeUser(ctx context.Context, userID string, purposes []string) error {
	if len(purposes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(purposes))
	for _, p := range purposes {
		keys = append(keys, s.key(p, userID))
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func encodeCodeRecord(record *CodeRecord) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(codeRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.Payload) > maxPayloadLen {
		return nil, errors.New("code record payload too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Payload))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Payload)
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*CodeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	record := &CodeRecord{}

	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var payloadLen uint16
	if err := binary.Read(reader, binary.BigEndian, &payloadLen); err != nil {
		return nil, err
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(reader, payload); err != nil {
		return nil, err
	}
	record.Payload = string(payload)

	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
