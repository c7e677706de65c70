package repositories

import (
	"context"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"gorm.io/gorm"

	"github.com/Gopher0727/GroupChat/internal/models"
	"github.com/Gopher0727/GroupChat/internal/storage"
)

var idSeq atomic.Int64

func nextID() string {
	return strconv.FormatInt(1_000_000+idSeq.Add(1), 10)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := storage.InitSQLiteMemory(uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// newTestMongo 需要设置 GROUPCHAT_TEST_MONGO_URI, 否则跳过
func newTestMongo(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("GROUPCHAT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("GROUPCHAT_TEST_MONGO_URI not set, skipping MongoDB tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, db, err := storage.InitMongo(ctx, uri, "groupchat_test_"+uuid.NewString()[:8])
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db
}

func seedUser(t *testing.T, users UserRepository, name string) *models.User {
	t.Helper()
	u := &models.User{
		ID:           nextID(),
		Email:        name + "-" + uuid.NewString()[:6] + "@example.com",
		PasswordHash: "x",
		DisplayName:  name,
	}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func strPtr(s string) *string { return &s }
