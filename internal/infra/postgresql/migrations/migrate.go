package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/pacedrop/campaign-scheduler/internal/repository"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createCampaignsTable(),
		createMessagesTable(),
	})

	return m.Migrate()
}

func createCampaignsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_campaigns",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.CampaignModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_campaigns_owner_status ON campaigns (owner_id, status)`,
				`CREATE INDEX IF NOT EXISTS idx_campaigns_due ON campaigns (scheduled_at) WHERE status IN ('PENDING', 'SCHEDULED', 'ACTIVE', 'PROCESSING')`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.CampaignModel{})
		},
	}
}

func createMessagesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_messages",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.MessageModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_messages_campaign_status ON messages (campaign_id, status)`,
				`CREATE INDEX IF NOT EXISTS idx_messages_last_sent ON messages (campaign_id, sent_at DESC) WHERE status = 'SENT'`,
				`CREATE INDEX IF NOT EXISTS idx_messages_stale_sending ON messages (sent_at) WHERE status = 'SENDING'`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.MessageModel{})
		},
	}
}
