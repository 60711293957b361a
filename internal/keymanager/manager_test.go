package keymanager

import (
	"context"
	"crypto/rsa"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hamodi15-code/SecureTalk/internal/crypto"
	"github.com/hamodi15-code/SecureTalk/internal/domain"
)

type MockKeyStore struct {
	mock.Mock
}

func (m *MockKeyStore) StoreKeys(ctx context.Context, userID uuid.UUID, data *domain.StoredKeyData) error {
	args := m.Called(ctx, userID, data)
	return args.Error(0)
}

func (m *MockKeyStore) RetrieveKeys(ctx context.Context, userID uuid.UUID) (*domain.StoredKeyData, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StoredKeyData), args.Error(1)
}

type MockUploader struct {
	mock.Mock
}

func (m *MockUploader) UploadPublicKey(ctx context.Context, pub *rsa.PublicKey) error {
	args := m.Called(ctx, pub)
	return args.Error(0)
}

func (m *MockUploader) UploadPrivateKey(ctx context.Context, priv *rsa.PrivateKey) error {
	args := m.Called(ctx, priv)
	return args.Error(0)
}

func TestLocalOnlySetup(t *testing.T) {
	store := new(MockKeyStore)
	uploader := new(MockUploader)
	userID := uuid.New()

	var storedData *domain.StoredKeyData
	store.On("StoreKeys", mock.Anything, userID, mock.Anything).
		Run(func(args mock.Arguments) {
			storedData = args.Get(2).(*domain.StoredKeyData)
		}).Return(nil)
	uploader.On("UploadPublicKey", mock.Anything, mock.Anything).Return(nil)

	c := NewLocalOnlyCustody(crypto.NewProvider(), store, uploader, userID)
	pair, err := c.GenerateAndStoreKeys(context.Background(), "Tr0ub4dor&3")

	require.NoError(t, err)
	require.NotNil(t, pair)
	require.NotNil(t, storedData)
	assert.NotEmpty(t, storedData.EncryptedPrivateKey)
	assert.NotEmpty(t, storedData.Salt)
	assert.NotEmpty(t, storedData.PublicKeyJWK)

	// Local-only must never ship the private key anywhere.
	uploader.AssertNotCalled(t, "UploadPrivateKey", mock.Anything, mock.Anything)

	// The vault record must unwrap back to a working private key.
	w := crypto.NewWrapper(crypto.NewProvider())
	recovered, err := w.DecryptPrivateKey(storedData.EncryptedPrivateKey, storedData.Salt, "Tr0ub4dor&3")
	require.NoError(t, err)
	assert.Equal(t, 0, pair.PrivateKey.D.Cmp(recovered.D))
}

func TestServerRecoverableSetupUploadsBothKeys(t *testing.T) {
	store := new(MockKeyStore)
	uploader := new(MockUploader)
	userID := uuid.New()

	store.On("StoreKeys", mock.Anything, userID, mock.Anything).Return(nil)
	uploader.On("UploadPrivateKey", mock.Anything, mock.Anything).Return(nil).Once()
	uploader.On("UploadPublicKey", mock.Anything, mock.Anything).Return(nil).Once()

	c := NewServerRecoverableCustody(crypto.NewProvider(), store, uploader, userID)
	_, err := c.GenerateAndStoreKeys(context.Background(), "pw")

	require.NoError(t, err)
	uploader.AssertExpectations(t)
}

func TestPrivateUploadFailureDoesNotBlockSetup(t *testing.T) {
	store := new(MockKeyStore)
	uploader := new(MockUploader)
	userID := uuid.New()

	store.On("StoreKeys", mock.Anything, userID, mock.Anything).Return(nil)
	uploader.On("UploadPrivateKey", mock.Anything, mock.Anything).Return(assert.AnError)
	uploader.On("UploadPublicKey", mock.Anything, mock.Anything).Return(nil)

	c := NewServerRecoverableCustody(crypto.NewProvider(), store, uploader, userID)
	_, err := c.GenerateAndStoreKeys(context.Background(), "pw")

	// Only the server-recovery path degrades.
	assert.NoError(t, err)
}

func TestPublicUploadFailurePropagates(t *testing.T) {
	store := new(MockKeyStore)
	uploader := new(MockUploader)
	userID := uuid.New()

	store.On("StoreKeys", mock.Anything, userID, mock.Anything).Return(nil)
	uploader.On("UploadPublicKey", mock.Anything, mock.Anything).Return(assert.AnError)

	c := NewLocalOnlyCustody(crypto.NewProvider(), store, uploader, userID)
	_, err := c.GenerateAndStoreKeys(context.Background(), "pw")

	assert.Error(t, err)
}

func TestHasExistingKeys(t *testing.T) {
	store := new(MockKeyStore)
	userID := uuid.New()

	store.On("RetrieveKeys", mock.Anything, userID).Return(nil, nil).Once()
	c := NewLocalOnlyCustody(crypto.NewProvider(), store, new(MockUploader), userID)

	has, err := c.HasExistingKeys(context.Background())
	require.NoError(t, err)
	assert.False(t, has)

	store.On("RetrieveKeys", mock.Anything, userID).
		Return(&domain.StoredKeyData{EncryptedPrivateKey: "k"}, nil).Once()

	has, err = c.HasExistingKeys(context.Background())
	require.NoError(t, err)
	assert.True(t, has)
}
