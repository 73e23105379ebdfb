package db

import (
	"fmt"
	"os"
	"testing"

	"github.com/BigOnwer/Gusen-App/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB connects to the database named by GUSEN_TEST_POSTGRES_DSN, runs
// migrations and truncates all messaging tables. Without the env var the
// integration tests skip.
func testDB(t *testing.T) *GormDB {
	t.Helper()

	dsn := os.Getenv("GUSEN_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("GUSEN_TEST_POSTGRES_DSN not set; skipping integration test")
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("unable to connect to test database: %v", err)
	}
	if err := Migrate(gdb); err != nil {
		t.Fatalf("unable to migrate test database: %v", err)
	}

	for _, table := range []string{"message_reads", "messages", "conversation_participants", "conversations", "users"} {
		if err := gdb.Exec("DELETE FROM " + table).Error; err != nil {
			t.Fatalf("unable to clean table %s: %v", table, err)
		}
	}

	return &GormDB{DB: gdb}
}

func createTestUser(t *testing.T, g *GormDB, username string) *models.User {
	t.Helper()
	user := &models.User{
		Username:       username,
		DisplayName:    username,
		Email:          fmt.Sprintf("%s@example.com", username),
		HashedPassword: "x",
	}
	if err := g.DB.Create(user).Error; err != nil {
		t.Fatalf("unable to create test user %s: %v", username, err)
	}
	return user
}
