package repository

import (
	"context"
	"errors"

	"ticketledger/internal/model"

	"gorm.io/gorm"
)

var ErrPersonNotFound = errors.New("person not found")

type PersonRepository struct {
	db *gorm.DB
}

func NewPersonRepository(db *gorm.DB) *PersonRepository {
	return &PersonRepository{db: db}
}

func (r *PersonRepository) Create(ctx context.Context, person *model.Person) error {
	return r.db.WithContext(ctx).Create(person).Error
}

func (r *PersonRepository) GetByID(ctx context.Context, id int64) (*model.Person, error) {
	var person model.Person
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&person).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPersonNotFound
		}
		return nil, err
	}
	return &person, nil
}

func (r *PersonRepository) GetByEmail(ctx context.Context, email string) (*model.Person, error) {
	var person model.Person
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&person).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPersonNotFound
		}
		return nil, err
	}
	return &person, nil
}
