package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger satisfies global.Logger and discards everything
type testLogger struct{}

func (testLogger) Debug(string)                             {}
func (testLogger) Debugf(format string, v ...interface{})   {}
func (testLogger) Info(string)                              {}
func (testLogger) Infof(format string, v ...interface{})    {}
func (testLogger) Warning(string)                           {}
func (testLogger) Warningf(format string, v ...interface{}) {}
func (testLogger) Error(string)                             {}
func (testLogger) Errorf(format string, v ...interface{})   {}
func (testLogger) Fatalf(format string, v ...interface{})   {}

func newTestStore(t *testing.T) Store {
	t.Helper()

	store, err := New(
		WithDataDir(t.TempDir()),
		WithLogger(testLogger{}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewRequiresLogger(t *testing.T) {
	_, err := New(WithDataDir(t.TempDir()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger")
}

func TestAddAndValidateAccessToken(t *testing.T) {
	store := newTestStore(t)

	token, hash, err := store.AddAccessToken("integration test")
	require.NoError(t, err)
	assert.Len(t, token, 64) // 32 random bytes, hex encoded
	assert.Len(t, hash, 64)  // sha256, hex encoded

	valid, gotHash, err := store.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, hash, gotHash)
}

func TestValidateUnknownToken(t *testing.T) {
	store := newTestStore(t)

	valid, hash, err := store.ValidateAccessToken("not-a-real-token")
	require.NoError(t, err)
	assert.False(t, valid)
	assert.Empty(t, hash)
}

func TestValidateEmptyToken(t *testing.T) {
	store := newTestStore(t)

	valid, _, err := store.ValidateAccessToken("")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestAddAccessTokenRequiresDescription(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.AddAccessToken("   ")
	require.Error(t, err)
}

func TestDeleteAccessTokenByHash(t *testing.T) {
	store := newTestStore(t)

	token, hash, err := store.AddAccessToken("to be deleted")
	require.NoError(t, err)

	require.NoError(t, store.DeleteAccessToken(hash))

	valid, _, err := store.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.False(t, valid, "deleted token must no longer validate")
}

func TestDeleteAccessTokenByPrefix(t *testing.T) {
	store := newTestStore(t)

	_, hash, err := store.AddAccessToken("prefix delete")
	require.NoError(t, err)

	require.NoError(t, store.DeleteAccessToken(hash[:10]))

	tokens, err := store.ListAccessTokens()
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestDeleteUnknownToken(t *testing.T) {
	store := newTestStore(t)

	err := store.DeleteAccessToken("ffffffffffff")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestListAccessTokens(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.AddAccessToken("first")
	require.NoError(t, err)
	_, _, err = store.AddAccessToken("second")
	require.NoError(t, err)

	tokens, err := store.ListAccessTokens()
	require.NoError(t, err)
	require.Len(t, tokens, 2)

	descriptions := []string{tokens[0].Description, tokens[1].Description}
	assert.ElementsMatch(t, []string{"first", "second"}, descriptions)
	for _, md := range tokens {
		assert.Len(t, md.Prefix, tokenPrefixLength)
		assert.False(t, md.CreatedAt.IsZero())
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Close())

	_, _, err := store.AddAccessToken("after close")
	assert.ErrorIs(t, err, ErrStoreClosed)

	_, err = store.ListAccessTokens()
	assert.ErrorIs(t, err, ErrStoreClosed)
}
