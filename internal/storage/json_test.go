package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"coursehub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONStorage(t *testing.T) {
	runStorageSuite(t, func(t *testing.T) Storage {
		s, err := NewJSONStorage(Config{Type: "json", Path: filepath.Join(t.TempDir(), "data.json")})
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestNewJSONStorage(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "nested", "test.json")

	storage, err := NewJSONStorage(Config{Type: "json", Path: filePath})
	require.NoError(t, err)
	require.NotNil(t, storage)
	defer storage.Close()

	assert.FileExists(t, filePath)
	assert.Equal(t, filePath, storage.Path())

	raw, err := os.ReadFile(filePath)
	require.NoError(t, err)
	var data JSONData
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Empty(t, data.Users)
	assert.False(t, data.LastUpdated.IsZero())
}

func TestNewJSONStorage_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	filePath := filepath.Join(t.TempDir(), "perm.json")

	storage, err := NewJSONStorage(Config{Path: filePath})
	require.NoError(t, err)
	require.NoError(t, storage.CreateUser(context.Background(), testUser("u1", "u1@example.com", models.RoleStudent)))

	info, err := os.Stat(filePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestNewJSONStorage_Errors(t *testing.T) {
	_, err := NewJSONStorage(Config{})
	assert.Error(t, err)

	corrupt := filepath.Join(t.TempDir(), "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0600))
	_, err = NewJSONStorage(Config{Path: corrupt})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load initial data")
}

func TestJSONStorage_PersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	filePath := filepath.Join(t.TempDir(), "coursehub.json")

	first, err := NewJSONStorage(Config{Path: filePath})
	require.NoError(t, err)

	require.NoError(t, first.CreateUser(ctx, testUser("prof", "prof@example.com", models.RoleInstructor)))
	require.NoError(t, first.CreateUser(ctx, testUser("stu", "stu@example.com", models.RoleStudent)))
	require.NoError(t, first.CreateCourse(ctx, testCourse("c1", "CS", "493", "sp22", "prof", 0)))
	require.NoError(t, first.UpdateEnrollment(ctx, "c1", []string{"stu"}, nil))
	require.NoError(t, first.CreateAssignment(ctx, &models.Assignment{ID: "a1", CourseID: "c1", Title: "HW1", Points: 10, Due: baseTime}))
	require.NoError(t, first.CreateSubmission(ctx, &models.Submission{
		ID: "s1", AssignmentID: "a1", StudentID: "stu", Timestamp: baseTime,
		File: models.SubmissionDownloadPath("s1"), ContentType: "application/pdf", FileName: "hw1.pdf", StoredPath: "/srv/uploads/s1",
	}))
	require.NoError(t, first.Close())

	second, err := NewJSONStorage(Config{Path: filePath})
	require.NoError(t, err)
	defer second.Close()

	user, err := second.GetUserByEmail(ctx, "prof@example.com")
	require.NoError(t, err)
	assert.Equal(t, "$2a$08$hash-prof", user.PasswordHash)

	enrolled, err := second.IsEnrolled(ctx, "c1", "stu")
	require.NoError(t, err)
	assert.True(t, enrolled)

	sub, err := second.GetSubmission(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "/srv/uploads/s1", sub.StoredPath)
	assert.Equal(t, "hw1.pdf", sub.FileName)
	assert.Equal(t, "application/pdf", sub.ContentType)

	// No temp files are left next to the document.
	entries, err := os.ReadDir(filepath.Dir(filePath))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
