package entities

import "time"

// Prediction is one predicted-metrics row for a (date, chat, delta) bucket.
// Rows are produced by the forecasting pipeline; this service only reads them.
type Prediction struct {
	Date   time.Time `gorm:"column:date;primaryKey" json:"date"`
	ChatID int64     `gorm:"column:chat_id;primaryKey" json:"chat_id"`
	Delta  int64     `gorm:"column:delta;primaryKey" json:"delta"`

	Views      float64 `gorm:"column:views" json:"views"`
	ViewsUpper float64 `gorm:"column:views_upper" json:"views_upper"`
	ViewsLower float64 `gorm:"column:views_lower" json:"views_lower"`

	Forwards      float64 `gorm:"column:forwards" json:"forwards"`
	ForwardsUpper float64 `gorm:"column:forwards_upper" json:"forwards_upper"`

	ReactionCount      float64 `gorm:"column:reaction_count" json:"reaction_count"`
	ReactionCountUpper float64 `gorm:"column:reaction_count_upper" json:"reaction_count_upper"`
}

// TableName returns the table name for GORM.
func (Prediction) TableName() string {
	return "metrics_channel_prediction"
}
