package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/BaSui01/roundtable/types"
)

// SeedPersonas 在 persona 表为空时写入默认人设.
// 仅用于开发和首次部署; 已有数据时是 no-op.
func SeedPersonas(ctx context.Context, db *gorm.DB) error {
	var count int64
	if err := db.WithContext(ctx).Model(&types.Persona{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	personas := []types.Persona{
		{
			Title:        "Optimist",
			Instructions: "Argue for the upside of the topic and build on prior points.",
			Style:        "warm, concrete, forward-looking",
		},
		{
			Title:        "Skeptic",
			Instructions: "Challenge weak arguments and surface risks the others missed.",
			Style:        "dry, precise, evidence-first",
		},
		{
			Title:        "Moderator",
			Instructions: "Summarize where the discussion stands and pose the next question.",
			Style:        "neutral, structured, brief",
		},
	}
	return db.WithContext(ctx).Create(&personas).Error
}
