package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/zhouzirui/chat-relay/backend/internal/config"
	"github.com/zhouzirui/chat-relay/backend/internal/model/chat"
)

// turnRow is the relational shape of a turn.
type turnRow struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	UID       string    `gorm:"size:36;uniqueIndex;not null"`
	SessionID string    `gorm:"size:64;not null;default:'';index:idx_chat_turns_session_ts,priority:1"`
	Role      string    `gorm:"size:10;not null"`
	Content   string    `gorm:"type:text;not null"`
	Timestamp time.Time `gorm:"column:created_at;not null;index:idx_chat_turns_session_ts,priority:2"`
}

func (turnRow) TableName() string {
	return "chat_turns"
}

func (r turnRow) turn() chat.Turn {
	return chat.Turn{
		ID:        r.UID,
		SessionID: r.SessionID,
		Role:      chat.Role(r.Role),
		Content:   r.Content,
		Timestamp: r.Timestamp.UTC(),
	}
}

// GormStore persists turns in a SQL table through gorm.
type GormStore struct {
	db    *gorm.DB
	clock *clock
}

// OpenPostgres connects to PostgreSQL, sizes the pool and migrates the schema.
func OpenPostgres(ctx context.Context, cfg config.StoreConfig) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewGormStore(db)
}

// NewGormStore wraps an open gorm handle and migrates the turns table.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&turnRow{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}
	// PostgreSQL keeps microseconds; truncating up front makes read-back identical.
	return &GormStore{db: db, clock: newClock(time.Microsecond)}, nil
}

// Append inserts one row.
func (s *GormStore) Append(ctx context.Context, turn chat.Turn) (chat.Turn, error) {
	if err := validate(turn); err != nil {
		return chat.Turn{}, storageErr("append", err)
	}

	row := turnRow{
		UID:       uuid.NewString(),
		SessionID: turn.SessionID,
		Role:      string(turn.Role),
		Content:   turn.Content,
		Timestamp: s.clock.next(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return chat.Turn{}, storageErr("append", err)
	}
	return row.turn(), nil
}

// ListBySession reads the session's rows ordered by timestamp, then insertion id.
func (s *GormStore) ListBySession(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	var rows []turnRow
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, storageErr("list", err)
	}

	turns := make([]chat.Turn, 0, len(rows))
	for _, row := range rows {
		turns = append(turns, row.turn())
	}
	return turns, nil
}

// Ping checks the database connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storageErr("ping", err)
	}
	return storageErr("ping", sqlDB.PingContext(ctx))
}

// Close closes the connection pool.
func (s *GormStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
