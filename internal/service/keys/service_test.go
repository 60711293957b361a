package keys

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hamodi15-code/SecureTalk/internal/domain"
	apperrors "github.com/hamodi15-code/SecureTalk/pkg/errors"
)

type MockKeysRepository struct {
	mock.Mock
}

func (m *MockKeysRepository) SavePublicKey(ctx context.Context, userID uuid.UUID, publicKey string) error {
	args := m.Called(ctx, userID, publicKey)
	return args.Error(0)
}

func (m *MockKeysRepository) GetPublicKey(ctx context.Context, userID uuid.UUID) (*domain.PublicKeyRecord, error) {
	args := m.Called(ctx, userID)
	if rec := args.Get(0); rec != nil {
		return rec.(*domain.PublicKeyRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockKeysRepository) SaveRecoverableKey(ctx context.Context, userID uuid.UUID, keyEncrypted string) error {
	args := m.Called(ctx, userID, keyEncrypted)
	return args.Error(0)
}

func (m *MockKeysRepository) DeleteExpiredKeys(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func TestUploadPublicKey(t *testing.T) {
	repo := new(MockKeysRepository)
	userID := uuid.New()
	key := b64("spki-der-bytes")
	repo.On("SavePublicKey", mock.Anything, userID, key).Return(nil)

	svc := NewService(repo, nil)

	err := svc.UploadPublicKey(context.Background(), userID, key)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestUploadPublicKeyRejectsNonBase64(t *testing.T) {
	repo := new(MockKeysRepository)
	svc := NewService(repo, nil)

	err := svc.UploadPublicKey(context.Background(), uuid.New(), "not base64!!!")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetAppError(err).Code)
	repo.AssertNotCalled(t, "SavePublicKey", mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadPublicKeyRetriesTransientFailure(t *testing.T) {
	repo := new(MockKeysRepository)
	userID := uuid.New()
	key := b64("spki-der-bytes")
	repo.On("SavePublicKey", mock.Anything, userID, key).Return(errors.New("connection reset")).Once()
	repo.On("SavePublicKey", mock.Anything, userID, key).Return(nil).Once()

	svc := NewService(repo, nil)

	err := svc.UploadPublicKey(context.Background(), userID, key)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestGetPublicKey(t *testing.T) {
	repo := new(MockKeysRepository)
	userID := uuid.New()
	rec := &domain.PublicKeyRecord{
		UserID:    userID,
		PublicKey: b64("spki-der-bytes"),
		UpdatedAt: time.Now(),
	}
	repo.On("GetPublicKey", mock.Anything, userID).Return(rec, nil)

	svc := NewService(repo, nil)

	got, err := svc.GetPublicKey(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, rec.PublicKey, got.PublicKey)
}

func TestGetPublicKeyMissing(t *testing.T) {
	repo := new(MockKeysRepository)
	userID := uuid.New()
	repo.On("GetPublicKey", mock.Anything, userID).Return(nil, nil)

	svc := NewService(repo, nil)

	_, err := svc.GetPublicKey(context.Background(), userID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeKeyNotFound, apperrors.GetAppError(err).Code)
}

func TestUploadPrivateKey(t *testing.T) {
	repo := new(MockKeysRepository)
	userID := uuid.New()
	key := b64("pkcs8-der-bytes")
	repo.On("SaveRecoverableKey", mock.Anything, userID, key).Return(nil)

	svc := NewService(repo, nil)

	err := svc.UploadPrivateKey(context.Background(), userID, key)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestUploadPrivateKeyEmpty(t *testing.T) {
	repo := new(MockKeysRepository)
	svc := NewService(repo, nil)

	err := svc.UploadPrivateKey(context.Background(), uuid.New(), "")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetAppError(err).Code)
}

func TestSweepExpired(t *testing.T) {
	repo := new(MockKeysRepository)
	repo.On("DeleteExpiredKeys", mock.Anything).Return(int64(3), nil)

	svc := NewService(repo, nil)

	svc.SweepExpired(context.Background())
	repo.AssertExpectations(t)
}

func TestSweepExpiredSwallowsErrors(t *testing.T) {
	repo := new(MockKeysRepository)
	repo.On("DeleteExpiredKeys", mock.Anything).Return(int64(0), errors.New("db down"))

	svc := NewService(repo, nil)

	// Must not panic or propagate.
	svc.SweepExpired(context.Background())
	repo.AssertExpectations(t)
}
