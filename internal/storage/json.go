package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"coursehub/internal/models"
)

// JSONStorage implements the Storage interface on top of MemoryStorage and
// writes a full snapshot to a JSON file after every mutation. Reads never
// touch the disk.
type JSONStorage struct {
	*MemoryStorage
	filePath string
}

// JSONData represents the structure of data stored in JSON format
type JSONData struct {
	Users       []userRecord         `json:"users"`
	Courses     []*models.Course     `json:"courses"`
	Enrollments map[string][]string  `json:"enrollments"`
	Assignments []*models.Assignment `json:"assignments"`
	Submissions []submissionRecord   `json:"submissions"`
	LastUpdated time.Time            `json:"last_updated"`
}

// userRecord keeps the password hash that the API representation hides.
type userRecord struct {
	models.User
	PasswordHash string `json:"passwordHash"`
}

// submissionRecord keeps the file metadata that the API representation hides.
type submissionRecord struct {
	models.Submission
	ContentType string `json:"contentType,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	StoredPath  string `json:"storedPath,omitempty"`
}

// NewJSONStorage creates a new JSON-based storage instance
func NewJSONStorage(config Config) (*JSONStorage, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("path is required for JSON storage")
	}

	storage := &JSONStorage{
		MemoryStorage: newMemoryStorage(),
		filePath:      config.Path,
	}

	// Initialize with empty data if file doesn't exist
	if err := storage.ensureFileExists(); err != nil {
		return nil, fmt.Errorf("failed to ensure file exists: %w", err)
	}

	if err := storage.loadData(); err != nil {
		return nil, fmt.Errorf("failed to load initial data: %w", err)
	}

	storage.persist = storage.saveData
	return storage, nil
}

// ensureFileExists creates the JSON file with empty data if it doesn't exist
func (j *JSONStorage) ensureFileExists() error {
	if _, err := os.Stat(j.filePath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(j.filePath), 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		return j.saveData()
	}
	return nil
}

// loadData replaces the in-memory state with the file contents
func (j *JSONStorage) loadData() error {
	fileData, err := os.ReadFile(j.filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var data JSONData
	if err := json.Unmarshal(fileData, &data); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	for _, rec := range data.Users {
		user := rec.User
		user.PasswordHash = rec.PasswordHash
		j.users[user.ID] = &user
		j.emails[models.NormalizeEmail(user.Email)] = user.ID
	}
	for _, course := range data.Courses {
		j.courses[course.ID] = course
	}
	for courseID, studentIDs := range data.Enrollments {
		students := make(map[string]struct{}, len(studentIDs))
		for _, id := range studentIDs {
			students[id] = struct{}{}
		}
		j.enrollments[courseID] = students
	}
	for _, assignment := range data.Assignments {
		j.assignments[assignment.ID] = assignment
	}
	for _, rec := range data.Submissions {
		submission := rec.Submission
		submission.ContentType = rec.ContentType
		submission.FileName = rec.FileName
		submission.StoredPath = rec.StoredPath
		j.submissions[submission.ID] = &submission
	}
	return nil
}

// saveData writes the current state to the JSON file. Callers hold the
// write lock, except during construction.
func (j *JSONStorage) saveData() error {
	data := j.snapshot()
	data.LastUpdated = time.Now().UTC()

	fileData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	// Write to a sibling temp file and rename so readers never see a
	// partially written document.
	tmp, err := os.CreateTemp(filepath.Dir(j.filePath), filepath.Base(j.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(fileData); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, j.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

// snapshot converts the maps into a document with stable ordering
func (j *JSONStorage) snapshot() *JSONData {
	data := &JSONData{
		Users:       make([]userRecord, 0, len(j.users)),
		Courses:     make([]*models.Course, 0, len(j.courses)),
		Enrollments: make(map[string][]string, len(j.enrollments)),
		Assignments: make([]*models.Assignment, 0, len(j.assignments)),
		Submissions: make([]submissionRecord, 0, len(j.submissions)),
	}

	for _, user := range j.users {
		data.Users = append(data.Users, userRecord{User: *user, PasswordHash: user.PasswordHash})
	}
	sort.Slice(data.Users, func(a, b int) bool { return data.Users[a].ID < data.Users[b].ID })

	for _, course := range j.courses {
		data.Courses = append(data.Courses, course)
	}
	sort.Slice(data.Courses, func(a, b int) bool { return data.Courses[a].ID < data.Courses[b].ID })

	for courseID, students := range j.enrollments {
		ids := make([]string, 0, len(students))
		for id := range students {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		data.Enrollments[courseID] = ids
	}

	for _, assignment := range j.assignments {
		data.Assignments = append(data.Assignments, assignment)
	}
	sort.Slice(data.Assignments, func(a, b int) bool { return data.Assignments[a].ID < data.Assignments[b].ID })

	for _, s := range j.submissions {
		data.Submissions = append(data.Submissions, submissionRecord{
			Submission:  *s,
			ContentType: s.ContentType,
			FileName:    s.FileName,
			StoredPath:  s.StoredPath,
		})
	}
	sort.Slice(data.Submissions, func(a, b int) bool { return data.Submissions[a].ID < data.Submissions[b].ID })

	return data
}

// Path returns the backing file path
func (j *JSONStorage) Path() string {
	return j.filePath
}
