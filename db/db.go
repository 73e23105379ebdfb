package db

import (
	"fmt"
	"log"

	"github.com/BigOnwer/Gusen-App/config"
	"github.com/BigOnwer/Gusen-App/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormDB struct {
	DB *gorm.DB
}

func GetDB(c *config.Config) *GormDB {
	gormDB := &GormDB{}
	gormDB.Init(c)
	return gormDB
}

func (g *GormDB) Init(c *config.Config) {
	g.DB = getPostgresDB(c)

	if err := Migrate(g.DB); err != nil {
		log.Fatalf("unable to run migrations: %v", err)
	}
}

func getPostgresDB(c *config.Config) *gorm.DB {
	postgresDSN := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d",
		c.PostgresHost, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresPort)

	// TranslateError maps unique violations to gorm.ErrDuplicatedKey, which
	// the resolver and the idempotent send path rely on.
	gormConfig := &gorm.Config{TranslateError: true}
	if c.Env != "prod" {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}
	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		DSN: postgresDSN,
	}), gormConfig)
	if err != nil {
		log.Fatal(err)
	}

	return gormDB
}

// Migrate creates the four relations plus the partial unique indexes the
// model tags cannot express.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.ConversationParticipant{},
		&models.Message{},
		&models.MessageRead{},
	)
	if err != nil {
		return err
	}

	// A client key dedupes resends within one conversation for one sender.
	// Rows with an empty key stay outside the constraint.
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_client_key
		ON messages (conversation_id, sender_id, client_key)
		WHERE client_key <> ''`).Error
}
