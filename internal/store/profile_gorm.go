package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/vetlink/companion/backend/internal/model/profile"
)

// profileRecord is the GORM row for veteran profiles.
type profileRecord struct {
	UserID              string   `gorm:"primaryKey;size:64"`
	FirstName           string   `gorm:"size:128"`
	LastName            string   `gorm:"size:128"`
	Branch              string   `gorm:"size:64"`
	ServiceYears        int
	NeedsAssistance     []string `gorm:"serializer:json"`
	NeedsUrgentOutreach bool     `gorm:"index"`
	UrgentOutreachAt    *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (profileRecord) TableName() string { return "veteran_profiles" }

func (r profileRecord) toProfile() *profile.Profile {
	p := &profile.Profile{
		UserID:              r.UserID,
		FirstName:           r.FirstName,
		LastName:            r.LastName,
		Branch:              r.Branch,
		ServiceYears:        r.ServiceYears,
		NeedsAssistance:     append([]string(nil), r.NeedsAssistance...),
		NeedsUrgentOutreach: r.NeedsUrgentOutreach,
	}
	if r.UrgentOutreachAt != nil {
		at := r.UrgentOutreachAt.UTC()
		p.UrgentOutreachAt = &at
	}
	return p
}

// GormProfileStore implements profile.Store on MySQL through GORM.
type GormProfileStore struct {
	db *gorm.DB
}

// NewMySQLProfileStore connects to MySQL and migrates the profile table.
func NewMySQLProfileStore(dsn string) (*GormProfileStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("mysql dsn is required")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect profile database: %w", err)
	}
	return NewGormProfileStore(db)
}

// NewGormProfileStore wraps an existing GORM handle.
func NewGormProfileStore(db *gorm.DB) (*GormProfileStore, error) {
	if err := db.AutoMigrate(&profileRecord{}); err != nil {
		return nil, fmt.Errorf("migrate profiles: %w", err)
	}
	return &GormProfileStore{db: db}, nil
}

// GetProfile returns (nil, nil) when the user has no profile row.
func (s *GormProfileStore) GetProfile(ctx context.Context, userID string) (*profile.Profile, error) {
	var rec profileRecord
	err := s.db.WithContext(ctx).First(&rec, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}
	return rec.toProfile(), nil
}

// MarkUrgentOutreach sets the outreach flag, creating a stub row for users
// without a profile.
func (s *GormProfileStore) MarkUrgentOutreach(ctx context.Context, userID string, at time.Time) error {
	ts := at.UTC()
	rec := profileRecord{
		UserID:              userID,
		NeedsUrgentOutreach: true,
		UrgentOutreachAt:    &ts,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"needs_urgent_outreach", "urgent_outreach_at", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("mark urgent outreach for %s: %w", userID, err)
	}
	return nil
}

// SaveProfile creates or replaces a profile.
func (s *GormProfileStore) SaveProfile(ctx context.Context, p profile.Profile) error {
	rec := profileRecord{
		UserID:              p.UserID,
		FirstName:           p.FirstName,
		LastName:            p.LastName,
		Branch:              p.Branch,
		ServiceYears:        p.ServiceYears,
		NeedsAssistance:     p.NeedsAssistance,
		NeedsUrgentOutreach: p.NeedsUrgentOutreach,
		UrgentOutreachAt:    p.UrgentOutreachAt,
	}
	if err := s.db.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("save profile %s: %w", p.UserID, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *GormProfileStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("profile database handle: %w", err)
	}
	return sqlDB.Close()
}

var _ profile.Store = (*GormProfileStore)(nil)
