package entities

import "time"

// Statistic holds aggregate deviation statistics for one metric of one chat
// over a [DateFrom, DateTo] window. Used to z-score observed deviations.
type Statistic struct {
	DateFrom time.Time `gorm:"column:date_from;primaryKey" json:"date_from"`
	DateTo   time.Time `gorm:"column:date_to;primaryKey" json:"date_to"`
	ChatID   int64     `gorm:"column:chat_id;primaryKey" json:"chat_id"`
	Delta    int64     `gorm:"column:delta;primaryKey" json:"delta"`
	Metric   string    `gorm:"column:metric;size:100;primaryKey" json:"metric"`

	Mean float64 `gorm:"column:mean" json:"mean"`
	Std  float64 `gorm:"column:std" json:"std"`
}

// TableName returns the table name for GORM.
func (Statistic) TableName() string {
	return "metrics_channel_statistic"
}
