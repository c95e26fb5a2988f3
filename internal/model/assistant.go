package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Parameters параметры конфигурации ассистента, хранятся как JSON
type Parameters map[string]any

// Value сериализует параметры для записи в базу
func (p Parameters) Value() (driver.Value, error) {
	if p == nil {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters: %w", err)
	}
	return string(data), nil
}

// Scan читает параметры из базы
func (p *Parameters) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*p = Parameters{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported parameters type %T", value)
	}

	parsed := Parameters{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("failed to decode parameters: %w", err)
		}
	}
	*p = parsed
	return nil
}

// GormDataType тип колонки для миграций
func (Parameters) GormDataType() string {
	return "text"
}

// Assistant именованная конфигурация бэкенда сегментации
type Assistant struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	AssistantType string     `gorm:"type:varchar(32);not null;index" json:"assistant_type"`
	Parameters    Parameters `gorm:"not null" json:"parameters"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName указывает имя таблицы для Assistant
func (Assistant) TableName() string {
	return "assistants"
}
