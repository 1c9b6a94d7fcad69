package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"feedhub/internal/database"
	"feedhub/internal/models"
)

// setupSQLiteDB returns a migrated file-backed sqlite database private to t.
func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "repo.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	return db
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return gormDB, mock
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := &models.User{Name: "User " + email, Email: email, Password: "hash", Status: models.DefaultStatus}
	require.NoError(t, NewUserRepository(db, nil).Create(context.Background(), u))
	return u
}

func seedPost(t *testing.T, db *gorm.DB, creator *models.User, title, image string) *models.Post {
	t.Helper()
	p := &models.Post{
		Title:    title,
		Content:  "Some content",
		ImageURL: image,
		Creator:  models.PostCreator{UserID: creator.ID, Name: creator.Name},
	}
	require.NoError(t, NewPostRepository(db, nil).Create(context.Background(), p))
	return p
}
