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

	"github.com/MrEthical07/goMFA/internal"
	"github.com/redis/go-redis/v9"
)

const (
	pendingChallengeRecordVersion1 = 1

	pendingChallengeFlagSecret = 1 << 0

	maxPendingChallengePayload = 64 << 10

	// DefaultWindow applies when a store is built without a positive window.
	DefaultWindow = 600 * time.Second
)

var (
	ErrPendingChallengeNotFound = errors.New("pending challenge not found")
	ErrPendingChallengeBackend  = errors.New("pending challenge backend unavailable")
	ErrPendingChallengeCorrupt  = errors.New("pending challenge record corrupt")
)

// PendingChallenge is the stored form of one in-flight second-factor attempt.
// Only a digest of the retrieval secret is kept.
type PendingChallenge struct {
	CreatedAt  int64
	HasSecret  bool
	SecretHash [32]byte
	Payload    []byte
}

// PendingChallengeStore keeps challenges under <prefix>:<token> with a native
// TTL equal to the window. Reads re-check CreatedAt against the store clock,
// so a record is dead once the window passes even if Redis still holds it.
type PendingChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
	window time.Duration
	now    func() time.Time
}

func NewPendingChallengeStore(
	redisClient redis.UniversalClient,
	prefix string,
	window time.Duration,
	now func() time.Time,
) *PendingChallengeStore {
	if prefix == "" {
		prefix = "mfac"
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &PendingChallengeStore{
		redis:  redisClient,
		prefix: prefix,
		window: window,
		now:    now,
	}
}

func (s *PendingChallengeStore) key(token string) string {
	return s.prefix + ":" + token
}

// Put upserts the challenge for token and restarts its window.
func (s *PendingChallengeStore) Put(ctx context.Context, token string, payload []byte, secret *string) error {
	record := &PendingChallenge{
		CreatedAt: s.now().UnixNano(),
		Payload:   payload,
	}
	if secret != nil {
		record.HasSecret = true
		record.SecretHash = internal.HashSecret(*secret)
	}

	encoded, err := encodePendingChallenge(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(token), encoded, s.window).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingChallengeBackend, err)
	}
	return nil
}

// Get returns the payload stored for token when the record is live and its
// secret equals secret (absent matches only absent). It never deletes.
func (s *PendingChallengeStore) Get(ctx context.Context, token string, secret *string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingChallengeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingChallengeBackend, err)
	}

	record, err := decodePendingChallenge(data)
	if err != nil {
		return nil, err
	}
	// secret is compared before expiry so both misses cost the same
	matched := secretMatches(record, secret)
	if !matched || s.expired(record) {
		return nil, ErrPendingChallengeNotFound
	}
	return record.Payload, nil
}

// Delete removes the record for token if its secret matches and reports
// whether the removed record was still live. An expired record is removed but
// reported as false. The read and delete run under WATCH so a concurrent
// re-upsert carrying a different secret survives.
func (s *PendingChallengeStore) Delete(ctx context.Context, token string, secret *string) (bool, error) {
	const maxRetries = 4
	key := s.key(token)

	for i := 0; i < maxRetries; i++ {
		var deleted bool
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			record, err := decodePendingChallenge(data)
			if err != nil {
				return err
			}
			if !secretMatches(record, secret) {
				return nil
			}
			live := !s.expired(record)

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}
			deleted = live
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return false, nil
			}
			if errors.Is(err, ErrPendingChallengeCorrupt) {
				return false, err
			}
			return false, fmt.Errorf("%w: %v", ErrPendingChallengeBackend, err)
		}
		return deleted, nil
	}

	return false, fmt.Errorf("%w: delete contention on %s", ErrPendingChallengeBackend, key)
}

func (s *PendingChallengeStore) expired(record *PendingChallenge) bool {
	return s.now().UnixNano()-record.CreatedAt >= int64(s.window)
}

func secretMatches(record *PendingChallenge, secret *string) bool {
	if secret == nil {
		return !record.HasSecret
	}
	if !record.HasSecret {
		return false
	}
	digest := internal.HashSecret(*secret)
	return subtle.ConstantTimeCompare(digest[:], record.SecretHash[:]) == 1
}

func encodePendingChallenge(record *PendingChallenge) ([]byte, error) {
	if len(record.Payload) > maxPendingChallengePayload {
		return nil, errors.New("pending challenge payload too large")
	}

	var buf bytes.Buffer
	buf.WriteByte(pendingChallengeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.CreatedAt); err != nil {
		return nil, err
	}

	var flags byte
	if record.HasSecret {
		flags |= pendingChallengeFlagSecret
	}
	buf.WriteByte(flags)
	if record.HasSecret {
		buf.Write(record.SecretHash[:])
	}

	if err := binary.Write(&buf, binary.BigEndian, uint32(len(record.Payload))); err != nil {
		return nil, err
	}
	buf.Write(record.Payload)

	return buf.Bytes(), nil
}

func decodePendingChallenge(data []byte) (*PendingChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPendingChallengeCorrupt, err)
	}
	if version != pendingChallengeRecordVersion1 {
		return nil, fmt.Errorf("%w: version %d", ErrPendingChallengeCorrupt, version)
	}

	record := &PendingChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.CreatedAt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPendingChallengeCorrupt, err)
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPendingChallengeCorrupt, err)
	}
	if flags&pendingChallengeFlagSecret != 0 {
		record.HasSecret = true
		if _, err := io.ReadFull(reader, record.SecretHash[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPendingChallengeCorrupt, err)
		}
	}

	var payloadLen uint32
	if err := binary.Read(reader, binary.BigEndian, &payloadLen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPendingChallengeCorrupt, err)
	}
	if payloadLen > maxPendingChallengePayload || int(payloadLen) != reader.Len() {
		return nil, fmt.Errorf("%w: payload length %d", ErrPendingChallengeCorrupt, payloadLen)
	}
	record.Payload = make([]byte, payloadLen)
	if _, err := io.ReadFull(reader, record.Payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPendingChallengeCorrupt, err)
	}

	return record, nil
}
