package store

import "time"

type User struct {
	ID           string
	PhoneNumber  string
	PasswordHash string
	FirstName    string
	LastName     string
	Department   string
	Role         string
	CreatedAt    time.Time
}

type File struct {
	ID             string
	FileNumber     string
	DispatchedDate time.Time
	AssignedTo     string
	CurrentStatus  string
	Remarks        string
	UploadedBy     string
	UploadDate     time.Time
}

type Notification struct {
	ID        string
	UserID    string
	Type      string
	Message   string
	FileID    string
	CreatedAt time.Time
	Read      bool
}
