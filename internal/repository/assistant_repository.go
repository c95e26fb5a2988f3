package repository

import (
	"context"
	"errors"
	"fmt"

	"segment-assist/internal/model"

	"gorm.io/gorm"
)

var (
	// ErrNotFound ассистент не найден
	ErrNotFound = errors.New("assistant not found")

	// ErrAlreadyExists ассистент с таким именем уже существует
	ErrAlreadyExists = errors.New("assistant already exists")
)

// AssistantFilter фильтр списка ассистентов
type AssistantFilter struct {
	Name          string
	AssistantType string
}

// AssistantRepository интерфейс для работы с реестром ассистентов
type AssistantRepository interface {
	Create(ctx context.Context, assistant *model.Assistant) error
	GetByName(ctx context.Context, name string) (*model.Assistant, error)
	GetByNameAndType(ctx context.Context, name, assistantType string) (*model.Assistant, error)
	List(ctx context.Context, filter AssistantFilter, page, pageSize int) ([]*model.Assistant, int64, error)
	Delete(ctx context.Context, name string) error
	EnsureDefaults(ctx context.Context, assistantTypes []string) error
}

// assistantRepository реализация AssistantRepository
type assistantRepository struct {
	db *gorm.DB
}

// NewAssistantRepository создает новый instance AssistantRepository
func NewAssistantRepository(db *gorm.DB) AssistantRepository {
	return &assistantRepository{
		db: db,
	}
}

// Create создает нового ассистента
func (r *assistantRepository) Create(ctx context.Context, assistant *model.Assistant) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Assistant{}).Where("name = ?", assistant.Name).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check assistant name: %w", err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, assistant.Name)
		}

		if assistant.Parameters == nil {
			assistant.Parameters = model.Parameters{}
		}
		if err := tx.Create(assistant).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s", ErrAlreadyExists, assistant.Name)
			}
			return fmt.Errorf("failed to create assistant: %w", err)
		}
		return nil
	})
}

// GetByName получает ассистента по имени
func (r *assistantRepository) GetByName(ctx context.Context, name string) (*model.Assistant, error) {
	var assistant model.Assistant
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&assistant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to get assistant: %w", err)
	}
	return &assistant, nil
}

// GetByNameAndType получает ассистента по имени и семейству
func (r *assistantRepository) GetByNameAndType(ctx context.Context, name, assistantType string) (*model.Assistant, error) {
	var assistant model.Assistant
	err := r.db.WithContext(ctx).
		Where("name = ? AND assistant_type = ?", name, assistantType).
		First(&assistant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s (%s)", ErrNotFound, name, assistantType)
		}
		return nil, fmt.Errorf("failed to get assistant: %w", err)
	}
	return &assistant, nil
}

// List получает список ассистентов с фильтром и пагинацией
func (r *assistantRepository) List(ctx context.Context, filter AssistantFilter, page, pageSize int) ([]*model.Assistant, int64, error) {
	var assistants []*model.Assistant
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Assistant{})
	if filter.Name != "" {
		query = query.Where("name LIKE ?", "%"+filter.Name+"%")
	}
	if filter.AssistantType != "" {
		query = query.Where("assistant_type = ?", filter.AssistantType)
	}
	query = query.Session(&gorm.Session{})

	// Подсчитываем общее количество
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count assistants: %w", err)
	}

	offset := (page - 1) * pageSize
	err := query.
		Offset(offset).
		Limit(pageSize).
		Order("name ASC").
		Find(&assistants).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list assistants: %w", err)
	}

	return assistants, total, nil
}

// Delete удаляет ассистента по имени
func (r *assistantRepository) Delete(ctx context.Context, name string) error {
	result := r.db.WithContext(ctx).Where("name = ?", name).Delete(&model.Assistant{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete assistant: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// EnsureDefaults создает зарезервированных ассистентов с именами семейств
func (r *assistantRepository) EnsureDefaults(ctx context.Context, assistantTypes []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, assistantType := range assistantTypes {
			assistant := model.Assistant{Name: assistantType, AssistantType: assistantType, Parameters: model.Parameters{}}
			err := tx.Where(model.Assistant{Name: assistantType}).
				Attrs(assistant).
				FirstOrCreate(&assistant).Error
			if err != nil {
				return fmt.Errorf("failed to ensure default assistant %s: %w", assistantType, err)
			}
		}
		return nil
	})
}
