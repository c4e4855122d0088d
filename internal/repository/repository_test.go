package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-classroom-api/internal/database"
	"github.com/noah-isme/gema-classroom-api/internal/models"
	"github.com/noah-isme/gema-classroom-api/internal/repository"
)

var now = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := database.ConnectSQLite(database.MemoryDSN(fmt.Sprintf("repo_%s_%d", t.Name(), time.Now().UnixNano())))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	require.NoError(t, db.Create(&[]models.Student{
		{ID: 10, Name: "Siti", Email: "siti@example.com"},
		{ID: 11, Name: "Budi", Email: "budi@example.com"},
	}).Error)
	require.NoError(t, db.Create(&models.Class{ID: 1, Name: "XI RPL 1", TeacherID: 100}).Error)
	require.NoError(t, db.Create(&models.Enrollment{ClassID: 1, StudentID: 10}).Error)
	return db
}

func seedAssignment(t *testing.T, db *gorm.DB, title string, due time.Time, published bool) models.Assignment {
	t.Helper()
	assignment := models.Assignment{
		ClassID:     1,
		Type:        models.AssignmentTypeAssignment,
		Title:       title,
		DueAt:       &due,
		IsPublished: published,
		MaxGrade:    models.DefaultMaxGrade,
		CreatedBy:   100,
	}
	require.NoError(t, repository.NewAssignmentRepository(db).Create(context.Background(), &assignment))
	return assignment
}
