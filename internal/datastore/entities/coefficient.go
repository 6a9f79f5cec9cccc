package entities

// Coefficient holds the static per-chat baseline thresholds used by the
// engagement detector. The table is small and changes rarely.
type Coefficient struct {
	ChatID int64 `gorm:"column:id;primaryKey" json:"id"`

	ForwardsByViews       float64 `gorm:"column:forwards_by_views" json:"forwards_by_views"`
	ReactionCountByViews  float64 `gorm:"column:reaction_count_by_views" json:"reaction_count_by_views"`
	MinimalViewsThreshold float64 `gorm:"column:minimal_views_threshold" json:"minimal_views_threshold"`
}

// TableName returns the table name for GORM.
func (Coefficient) TableName() string {
	return "metrics_channel_coefficient"
}
