package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonRoleData(t *testing.T) {
	t.Run("student variant", func(t *testing.T) {
		p := &Person{Role: RoleStudent, RoleData: `{"grade_level":"10","parent_id":42}`}

		data, err := p.StudentData()
		require.NoError(t, err)
		require.NotNil(t, data)
		assert.Equal(t, "10", data.GradeLevel)
		require.NotNil(t, data.ParentID)
		assert.Equal(t, int64(42), *data.ParentID)

		tutor, err := p.TutorData()
		require.NoError(t, err)
		assert.Nil(t, tutor)
	})

	t.Run("tutor variant", func(t *testing.T) {
		p := &Person{Role: RoleTutor, RoleData: `{"subjects":["math","physics"],"hourly_rate":4500}`}

		data, err := p.TutorData()
		require.NoError(t, err)
		require.NotNil(t, data)
		assert.Equal(t, []string{"math", "physics"}, data.Subjects)
		assert.Equal(t, int64(4500), data.HourlyRate)

		student, err := p.StudentData()
		require.NoError(t, err)
		assert.Nil(t, student)
	})

	t.Run("empty payload decodes to zero value", func(t *testing.T) {
		p := &Person{Role: RoleStudent}

		data, err := p.StudentData()
		require.NoError(t, err)
		require.NotNil(t, data)
		assert.Empty(t, data.GradeLevel)
	})

	t.Run("malformed payload", func(t *testing.T) {
		p := &Person{Role: RoleStudent, RoleData: `{broken`}

		_, err := p.StudentData()
		assert.Error(t, err)
	})
}
