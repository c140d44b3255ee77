package model

import (
	"encoding/json"
	"time"
)

const (
	RoleStudent = "STUDENT"
	RoleTutor   = "TUTOR"
	RoleParent  = "PARENT"
	RoleAdmin   = "ADMIN"
)

// Person is the core identity record. Role-specific data lives in RoleData
// as a JSON variant selected by Role -- a tagged union, not inheritance.
type Person struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(128);not null" json:"name"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Role      string    `gorm:"type:varchar(20);index;not null" json:"role"`
	RoleData  string    `gorm:"type:json" json:"-"` // variant payload for Role
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Person) TableName() string {
	return "person"
}

// NewPerson builds a person with explicit timestamps.
func NewPerson(name, email, role, roleData string) *Person {
	now := time.Now()
	return &Person{
		Name:      name,
		Email:     email,
		Role:      role,
		RoleData:  roleData,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StudentData is the variant payload for RoleStudent.
type StudentData struct {
	GradeLevel string `json:"grade_level,omitempty"`
	ParentID   *int64 `json:"parent_id,omitempty"`
}

// TutorData is the variant payload for RoleTutor.
type TutorData struct {
	Subjects   []string   `json:"subjects,omitempty"`
	HourlyRate int64      `json:"hourly_rate,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
}

// StudentData decodes the variant payload; nil if the person is not a student.
func (p *Person) StudentData() (*StudentData, error) {
	if p.Role != RoleStudent {
		return nil, nil
	}
	var d StudentData
	if p.RoleData != "" {
		if err := json.Unmarshal([]byte(p.RoleData), &d); err != nil {
			return nil, err
		}
	}
	return &d, nil
}

// TutorData decodes the variant payload; nil if the person is not a tutor.
func (p *Person) TutorData() (*TutorData, error) {
	if p.Role != RoleTutor {
		return nil, nil
	}
	var d TutorData
	if p.RoleData != "" {
		if err := json.Unmarshal([]byte(p.RoleData), &d); err != nil {
			return nil, err
		}
	}
	return &d, nil
}
