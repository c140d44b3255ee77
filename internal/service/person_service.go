package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ticketledger/internal/model"
	"ticketledger/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrEmailTaken  = errors.New("email already registered")
	ErrInvalidRole = errors.New("unknown role")
)

var validRoles = map[string]bool{
	model.RoleStudent: true,
	model.RoleTutor:   true,
	model.RoleParent:  true,
	model.RoleAdmin:   true,
}

// PersonService manages the person registry the account layer checks roles
// against.
type PersonService struct {
	db         *gorm.DB
	personRepo *repository.PersonRepository
}

func NewPersonService(db *gorm.DB) *PersonService {
	return &PersonService{
		db:         db,
		personRepo: repository.NewPersonRepository(db),
	}
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	RoleData string `json:"role_data"`
}

// Register creates a person. RoleData must be a JSON object matching the
// role's variant shape; the unique index on email is the backstop for the
// duplicate check.
func (s *PersonService) Register(ctx context.Context, req *RegisterRequest) (*model.Person, error) {
	if req.Name == "" || req.Email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalidPayload)
	}
	if !validRoles[req.Role] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}
	if req.RoleData != "" && !json.Valid([]byte(req.RoleData)) {
		return nil, fmt.Errorf("%w: role_data is not valid JSON", ErrInvalidPayload)
	}

	existing, err := s.personRepo.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, repository.ErrPersonNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	person := model.NewPerson(req.Name, req.Email, req.Role, req.RoleData)
	if err := s.personRepo.Create(ctx, person); err != nil {
		return nil, err
	}
	return person, nil
}

// GetPerson looks a person up by id.
func (s *PersonService) GetPerson(ctx context.Context, id int64) (*model.Person, error) {
	return s.personRepo.GetByID(ctx, id)
}
