package admission

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contestpipe/contestpipe/internal/apperrors"
	"github.com/contestpipe/contestpipe/internal/cache"
	"github.com/contestpipe/contestpipe/internal/logger"
)

// fakeCache is an in-memory stand-in honoring the same TTL and
// atomicity semantics as the redis-backed client. failSetFor makes Set
// fail for keys with that prefix, simulating a partial outage.
type fakeCache struct {
	now        time.Time
	entries    map[string]fakeEntry
	failSetFor string
}

type fakeEntry struct {
	value    []byte
	deadline time.Time
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		now:     time.Now(),
		entries: make(map[string]fakeEntry),
	}
}

func (f *fakeCache) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *fakeCache) live(key string) ([]byte, bool) {
	entry, ok := f.entries[key]
	if !ok || f.now.After(entry.deadline) {
		delete(f.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (f *fakeCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if _, ok := f.live(key); ok {
		return false, nil
	}
	f.entries[key] = fakeEntry{value: value, deadline: f.now.Add(ttl)}
	return true, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.failSetFor != "" && strings.HasPrefix(key, f.failSetFor) {
		return errors.New("write refused")
	}
	f.entries[key] = fakeEntry{value: value, deadline: f.now.Add(ttl)}
	return nil
}

func (f *fakeCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok := f.live(key)
	if !ok {
		return nil, cache.ErrMiss
	}
	return value, nil
}

func (f *fakeCache) GetDel(ctx context.Context, key string) ([]byte, error) {
	value, ok := f.live(key)
	if !ok {
		return nil, cache.ErrMiss
	}
	delete(f.entries, key)
	return value, nil
}

func (f *fakeCache) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.entries, key)
	}
	return nil
}

func (f *fakeCache) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	current := int64(0)
	if value, ok := f.live(key); ok {
		parsed, err := parseCount(value)
		if err != nil {
			return 0, err
		}
		current = parsed
	}
	current += n
	f.entries[key] = fakeEntry{
		value:    []byte(formatCount(current)),
		deadline: f.now.Add(365 * 24 * time.Hour),
	}
	return current, nil
}

func parseCount(value []byte) (int64, error) {
	var count int64
	for _, b := range value {
		count = count*10 + int64(b-'0')
	}
	return count, nil
}

func formatCount(count int64) string {
	if count == 0 {
		return "0"
	}
	var digits []byte
	for count > 0 {
		digits = append([]byte{byte('0' + count%10)}, digits...)
		count /= 10
	}
	return string(digits)
}

const verificationWindow = 120 * time.Second

func newTestStore() (*Store, *fakeCache) {
	fc := newFakeCache()
	return NewStore(fc, verificationWindow, logger.Nop()), fc
}

func TestBeginAdmissionTwiceYieldsOneConflict(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	end := time.Now().Add(1 * time.Hour)

	first, err := store.BeginAdmission(ctx, "comp-1", "a@example.com", map[string]string{"q": "1"}, end)
	require.Nil(t, err)
	require.NotEmpty(t, first.SubmissionKey)
	require.NotEmpty(t, first.Token)

	second, err := store.BeginAdmission(ctx, "comp-1", "a@example.com", map[string]string{"q": "2"}, end)
	require.NotNil(t, err)
	assert.Nil(t, second)
	assert.Equal(t, apperrors.CodeAlreadyExists, err.Code)
}

func TestBeginAdmissionDistinctIdentities(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	end := time.Now().Add(1 * time.Hour)

	_, err := store.BeginAdmission(ctx, "comp-1", "a@example.com", nil, end)
	require.Nil(t, err)

	// Same email in another competition is a separate identity.
	_, err = store.BeginAdmission(ctx, "comp-2", "a@example.com", nil, end)
	require.Nil(t, err)

	// Another email in the same competition too.
	_, err = store.BeginAdmission(ctx, "comp-1", "b@example.com", nil, end)
	require.Nil(t, err)
}

func TestRedeemTokenIsSingleUse(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	end := time.Now().Add(1 * time.Hour)

	begin, err := store.BeginAdmission(ctx, "comp-1", "a@example.com", map[string]string{"q": "1"}, end)
	require.Nil(t, err)

	admCtx, err := store.RedeemToken(ctx, begin.Token, "a@example.com")
	require.Nil(t, err)
	assert.Equal(t, "comp-1", admCtx.CompetitionId)
	assert.Equal(t, "a@example.com", admCtx.Email)
	assert.Equal(t, map[string]string{"q": "1"}, admCtx.FormData)

	_, err = store.RedeemToken(ctx, begin.Token, "a@example.com")
	require.NotNil(t, err)
	assert.Equal(t, apperrors.CodeTokenInvalid, err.Code)
}

func TestRedeemTokenEmailMismatch(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	begin, err := store.BeginAdmission(ctx, "comp-1", "a@example.com", nil, time.Now().Add(1*time.Hour))
	require.Nil(t, err)

	_, err = store.RedeemToken(ctx, begin.Token, "intruder@example.com")
	require.NotNil(t, err)
	assert.Equal(t, apperrors.CodeEmailMismatch, err.Code)
}

func TestRedeemTokenExpired(t *testing.T) {
	store, fc := newTestStore()
	ctx := context.Background()

	begin, err := store.BeginAdmission(ctx, "comp-1", "a@example.com", nil, time.Now().Add(1*time.Hour))
	require.Nil(t, err)

	fc.advance(verificationWindow + time.Second)

	_, err = store.RedeemToken(ctx, begin.Token, "a@example.com")
	require.NotNil(t, err)
	assert.Equal(t, apperrors.CodeTokenInvalid, err.Code)
}

func TestVerifiedRecordStillBlocksReadmission(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	end := time.Now().Add(1 * time.Hour)

	begin, err := store.BeginAdmission(ctx, "comp-1", "a@example.com", nil, end)
	require.Nil(t, err)

	_, err = store.RedeemToken(ctx, begin.Token, "a@example.com")
	require.Nil(t, err)

	require.Nil(t, store.MarkVerified(ctx, begin.SubmissionKey, time.Until(end)))

	_, err = store.BeginAdmission(ctx, "comp-1", "a@example.com", nil, end)
	require.NotNil(t, err)
	assert.Equal(t, apperrors.CodeAlreadyExists, err.Code)
}

func TestVerifiedRecordOutlivesVerificationWindow(t *testing.T) {
	store, fc := newTestStore()
	ctx := context.Background()
	end := time.Now().Add(1 * time.Hour)

	begin, err := store.BeginAdmission(ctx, "comp-1", "a@example.com", nil, end)
	require.Nil(t, err)
	require.Nil(t, store.MarkVerified(ctx, begin.SubmissionKey, 1*time.Hour))

	// Well past the verification window but inside the competition.
	fc.advance(30 * time.Minute)

	_, err = store.BeginAdmission(ctx, "comp-1", "a@example.com", nil, end)
	require.NotNil(t, err)
	assert.Equal(t, apperrors.CodeAlreadyExists, err.Code)
}

func TestBeginAdmissionTokenWriteFailureFreesIdentity(t *testing.T) {
	store, fc := newTestStore()
	ctx := context.Background()
	end := time.Now().Add(1 * time.Hour)

	fc.failSetFor = "verification_token:"
	_, err := store.BeginAdmission(ctx, "comp-1", "a@example.com", nil, end)
	require.NotNil(t, err)
	assert.Equal(t, apperrors.CodeRedisOperationError, err.Code)

	// The orphaned pending record must not block a retry.
	fc.failSetFor = ""
	_, err = store.BeginAdmission(ctx, "comp-1", "a@example.com", nil, end)
	require.Nil(t, err)
}

func TestRollbackFreesIdentity(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()
	end := time.Now().Add(1 * time.Hour)

	begin, err := store.BeginAdmission(ctx, "comp-1", "a@example.com", nil, end)
	require.Nil(t, err)

	require.Nil(t, store.Rollback(ctx, begin.SubmissionKey, begin.Token))

	_, err = store.BeginAdmission(ctx, "comp-1", "a@example.com", nil, end)
	require.Nil(t, err)
}

func TestSubmissionCountDefaultsToZero(t *testing.T) {
	store, _ := newTestStore()
	ctx := context.Background()

	count, err := store.SubmissionCount(ctx, "comp-1")
	require.Nil(t, err)
	assert.Equal(t, int64(0), count)

	require.Nil(t, store.IncrementSubmissionCount(ctx, "comp-1"))
	require.Nil(t, store.IncrementSubmissionCount(ctx, "comp-1"))

	count, err = store.SubmissionCount(ctx, "comp-1")
	require.Nil(t, err)
	assert.Equal(t, int64(2), count)
}
