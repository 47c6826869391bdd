package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"fileforge/api/internal/auth"
	"fileforge/api/internal/config"
	"fileforge/api/internal/credential"
	"fileforge/api/internal/policy"
	"fileforge/api/internal/search"
	"fileforge/api/internal/store"
	"fileforge/api/internal/util"
)

// Session is an authenticated caller.
type Session struct {
	Token     string
	UserID    string
	Name      string
	Role      string
	JTI       string
	ExpiresAt time.Time
}

func (s Session) actor() policy.Actor {
	return policy.Actor{ID: s.UserID, Role: policy.Role(s.Role)}
}

// The fixed workflow statuses. Order matters for stats breakdowns.
var fileStatuses = []string{"Pending", "In Progress", "Completed", "Reject", "Archived", "Urgent"}

const defaultStatus = "Pending"

func validStatus(status string) bool {
	for _, s := range fileStatuses {
		if s == status {
			return true
		}
	}
	return false
}

const (
	notifyFileCreated = "file_created"
	notifyFileUpdated = "file_updated"
	notifyFileDeleted = "file_deleted"
)

type dataStore interface {
	CreateUser(ctx context.Context, user store.User) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetUserByPhone(ctx context.Context, phoneNumber string) (store.User, error)
	ListUsers(ctx context.Context) ([]store.User, error)
	CountUsers(ctx context.Context) (int, error)

	InsertFile(ctx context.Context, file store.File) error
	GetFile(ctx context.Context, fileID string) (store.File, error)
	UpdateFile(ctx context.Context, file store.File) error
	DeleteFile(ctx context.Context, fileID string) error
	ListFilesAssignedTo(ctx context.Context, userID string, limit int) ([]store.File, error)
	ListFilesUploadedBy(ctx context.Context, userID string) ([]store.File, error)
	ListAllFiles(ctx context.Context, limit int) ([]store.File, error)
	CountFiles(ctx context.Context) (int, error)
	CountFilesAssignedTo(ctx context.Context, userID string) (int, error)
	CountFilesUploadedBy(ctx context.Context, userID string) (int, error)
	CountFilesByStatus(ctx context.Context) (map[string]int, error)
	CountFilesByStatusAssignedTo(ctx context.Context, userID string) (map[string]int, error)

	InsertNotification(ctx context.Context, notification store.Notification) error
	ListNotifications(ctx context.Context, userID string) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string) (store.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID string) error
	DeleteNotification(ctx context.Context, userID, notificationID string) error

	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
	Ping(ctx context.Context) error
}

// revocationStore is the subset of dataStore a dedicated session backend
// (Redis) provides.
type revocationStore interface {
	RevokeAccessToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// searchIndex is what the file lifecycle needs from the search layer.
type searchIndex interface {
	Search(q search.Query) search.Response
	IndexFile(f search.FileRecord)
	DeleteFile(id string)
}

type Service struct {
	cfg         config.Config
	store       dataStore
	revocations revocationStore
	search      searchIndex
	credentials *credential.Service
}

func New(cfg config.Config, dataStore dataStore, searchService searchIndex) *Service {
	return NewWithSessionStore(cfg, dataStore, nil, searchService)
}

// NewWithSessionStore uses a dedicated backend for token revocation (Redis);
// when sessions is nil, revocations live in the primary store.
func NewWithSessionStore(cfg config.Config, dataStore dataStore, sessions revocationStore, searchService searchIndex) *Service {
	s := &Service{
		cfg:         cfg,
		store:       dataStore,
		revocations: sessions,
		search:      searchService,
		credentials: credential.NewService(dataStore),
	}
	if s.revocations == nil {
		s.revocations = dataStore
	}
	return s
}

func (s *Service) Credentials() *credential.Service {
	return s.credentials
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Sessions

// CreateSession issues a signed access token for the user.
func (s *Service) CreateSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: displayName(user),
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Name:      displayName(user),
		Role:      user.Role,
		JTI:       jti,
		ExpiresAt: expiresAt,
	}, nil
}

// SessionFromToken verifies a token, rejects revoked ones, and re-reads the
// user so role changes take effect without waiting for expiry.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.revocations.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Name:      displayName(user),
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the session's token until its natural expiry.
func (s *Service) Logout(ctx context.Context, session Session) error {
	if session.JTI == "" {
		return nil
	}
	return s.revocations.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
}

// Profile returns the caller's own user record.
func (s *Service) Profile(ctx context.Context, actor Session) (UserView, error) {
	user, err := s.store.GetUserByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserView{}, auth.ErrInvalidToken
		}
		return UserView{}, err
	}
	return userView(user), nil
}

// Views

type UserView struct {
	ID          string `json:"id"`
	PhoneNumber string `json:"phoneNumber"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Name        string `json:"name"`
	Department  string `json:"department"`
	Role        string `json:"role"`
}

func userView(user store.User) UserView {
	return UserView{
		ID:          user.ID,
		PhoneNumber: user.PhoneNumber,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		Name:        displayName(user),
		Department:  user.Department,
		Role:        user.Role,
	}
}

type FileView struct {
	ID             string    `json:"id"`
	FileNumber     string    `json:"fileNumber"`
	DispatchedDate time.Time `json:"dispatchedDate"`
	To             string    `json:"to"`
	CurrentStatus  string    `json:"currentStatus"`
	Remarks        string    `json:"remarks"`
	UploadedBy     string    `json:"uploadedBy"`
	UploadDate     time.Time `json:"uploadDate"`
	UploadedByName string    `json:"uploadedByName,omitempty"`
	AssignedToName string    `json:"assignedToName,omitempty"`
}

func fileView(file store.File) FileView {
	return FileView{
		ID:             file.ID,
		FileNumber:     file.FileNumber,
		DispatchedDate: file.DispatchedDate,
		To:             file.AssignedTo,
		CurrentStatus:  file.CurrentStatus,
		Remarks:        file.Remarks,
		UploadedBy:     file.UploadedBy,
		UploadDate:     file.UploadDate,
	}
}

type NotificationView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	FileID    string    `json:"fileId"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}

func notificationView(n store.Notification) NotificationView {
	return NotificationView{
		ID:        n.ID,
		UserID:    n.UserID,
		Type:      n.Type,
		Message:   n.Message,
		FileID:    n.FileID,
		CreatedAt: n.CreatedAt,
		Read:      n.Read,
	}
}

// displayName renders a user for the UI: trimmed "first last", falling back
// to the phone number, then to "Unknown".
func displayName(user store.User) string {
	name := strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
	if name != "" {
		return name
	}
	if strings.TrimSpace(user.PhoneNumber) != "" {
		return user.PhoneNumber
	}
	return "Unknown"
}

// nameResolver caches user display names for one enrichment pass.
type nameResolver struct {
	store dataStore
	cache map[string]string
}

func (s *Service) resolver() *nameResolver {
	return &nameResolver{store: s.store, cache: make(map[string]string)}
}

func (r *nameResolver) name(ctx context.Context, userID string) string {
	if name, ok := r.cache[userID]; ok {
		return name
	}
	name := "Unknown"
	if user, err := r.store.GetUserByID(ctx, userID); err == nil {
		name = displayName(user)
	}
	r.cache[userID] = name
	return name
}

// File lifecycle

type CreateFileInput struct {
	FileNumber     string `json:"fileNumber"`
	DispatchedDate string `json:"dispatchedDate"`
	To             string `json:"to"`
	CurrentStatus  string `json:"currentStatus"`
	Remarks        string `json:"remarks"`
}

func (s *Service) CreateFile(ctx context.Context, actor Session, input CreateFileInput) (FileView, error) {
	fileNumber := strings.TrimSpace(input.FileNumber)
	if fileNumber == "" {
		return FileView{}, validationError("fileNumber", "file number is required")
	}
	assignee := strings.TrimSpace(input.To)
	if assignee == "" {
		return FileView{}, validationError("to", "assignee is required")
	}
	if strings.TrimSpace(input.DispatchedDate) == "" {
		return FileView{}, validationError("dispatchedDate", "dispatched date is required")
	}
	dispatchedDate, err := parseDate(input.DispatchedDate)
	if err != nil {
		return FileView{}, validationError("dispatchedDate", "dispatched date must be a valid date")
	}

	status := strings.TrimSpace(input.CurrentStatus)
	if status == "" {
		status = defaultStatus
	}
	if !validStatus(status) {
		return FileView{}, validationError("currentStatus", "unknown status "+status)
	}

	file := store.File{
		ID:             util.NewID("file"),
		FileNumber:     fileNumber,
		DispatchedDate: dispatchedDate,
		AssignedTo:     assignee,
		CurrentStatus:  status,
		Remarks:        strings.TrimSpace(input.Remarks),
		UploadedBy:     actor.UserID,
		UploadDate:     time.Now().UTC(),
	}

	if err := s.store.InsertFile(ctx, file); err != nil {
		if errors.Is(err, store.ErrDuplicateFileNumber) {
			return FileView{}, domainError(409, "FILE_EXISTS", "File with this number already exists", nil)
		}
		return FileView{}, err
	}

	s.notify(ctx, file.AssignedTo, notifyFileCreated,
		fmt.Sprintf("New file %s has been assigned to you", file.FileNumber), file.ID)
	s.indexFile(file)

	return fileView(file), nil
}

func (s *Service) GetFile(ctx context.Context, actor Session, fileID string) (FileView, error) {
	file, err := s.loadFile(ctx, fileID)
	if err != nil {
		return FileView{}, err
	}
	if !policy.CanAct(actor.actor(), policy.ActionView, policyFile(file)) {
		return FileView{}, forbidden()
	}

	names := s.resolver()
	view := fileView(file)
	view.UploadedByName = names.name(ctx, file.UploadedBy)
	view.AssignedToName = names.name(ctx, file.AssignedTo)
	return view, nil
}

// ListAssigned returns files routed to the actor, newest first.
func (s *Service) ListAssigned(ctx context.Context, actor Session, limit int) ([]FileView, error) {
	files, err := s.store.ListFilesAssignedTo(ctx, actor.UserID, limit)
	if err != nil {
		return nil, err
	}

	names := s.resolver()
	views := make([]FileView, 0, len(files))
	for _, file := range files {
		view := fileView(file)
		view.UploadedByName = names.name(ctx, file.UploadedBy)
		views = append(views, view)
	}
	return views, nil
}

// ListUploaded returns files the actor created, newest first.
func (s *Service) ListUploaded(ctx context.Context, actor Session) ([]FileView, error) {
	files, err := s.store.ListFilesUploadedBy(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	names := s.resolver()
	views := make([]FileView, 0, len(files))
	for _, file := range files {
		view := fileView(file)
		view.AssignedToName = names.name(ctx, file.AssignedTo)
		views = append(views, view)
	}
	return views, nil
}

// ListAll returns every file; admin only.
func (s *Service) ListAll(ctx context.Context, actor Session, limit int) ([]FileView, error) {
	if !policy.CanListAll(actor.actor()) {
		return nil, domainError(403, "ADMIN_ONLY", "Admins only", nil)
	}

	files, err := s.store.ListAllFiles(ctx, limit)
	if err != nil {
		return nil, err
	}

	names := s.resolver()
	views := make([]FileView, 0, len(files))
	for _, file := range files {
		view := fileView(file)
		view.UploadedByName = names.name(ctx, file.UploadedBy)
		view.AssignedToName = names.name(ctx, file.AssignedTo)
		views = append(views, view)
	}
	return views, nil
}

type UpdateFileInput struct {
	FileNumber     string `json:"fileNumber"`
	DispatchedDate string `json:"dispatchedDate"`
	To             string `json:"to"`
	CurrentStatus  string `json:"currentStatus"`
	Remarks        string `json:"remarks"`
}

// UpdateFile applies the non-empty fields of patch. An absent or empty field
// never overwrites the stored value. A status change notifies the original
// uploader.
func (s *Service) UpdateFile(ctx context.Context, actor Session, fileID string, patch UpdateFileInput) (FileView, error) {
	file, err := s.loadFile(ctx, fileID)
	if err != nil {
		return FileView{}, err
	}
	if !policy.CanAct(actor.actor(), policy.ActionUpdate, policyFile(file)) {
		return FileView{}, forbidden()
	}

	previousStatus := file.CurrentStatus

	if v := strings.TrimSpace(patch.FileNumber); v != "" {
		file.FileNumber = v
	}
	if v := strings.TrimSpace(patch.DispatchedDate); v != "" {
		dispatchedDate, err := parseDate(v)
		if err != nil {
			return FileView{}, validationError("dispatchedDate", "dispatched date must be a valid date")
		}
		file.DispatchedDate = dispatchedDate
	}
	if v := strings.TrimSpace(patch.To); v != "" {
		file.AssignedTo = v
	}
	if v := strings.TrimSpace(patch.CurrentStatus); v != "" {
		if !validStatus(v) {
			return FileView{}, validationError("currentStatus", "unknown status "+v)
		}
		file.CurrentStatus = v
	}
	if v := strings.TrimSpace(patch.Remarks); v != "" {
		file.Remarks = v
	}

	if err := s.store.UpdateFile(ctx, file); err != nil {
		if errors.Is(err, store.ErrDuplicateFileNumber) {
			return FileView{}, domainError(409, "FILE_EXISTS", "File with this number already exists", nil)
		}
		if errors.Is(err, sql.ErrNoRows) {
			return FileView{}, notFound("File not found")
		}
		return FileView{}, err
	}

	if file.CurrentStatus != previousStatus {
		s.notify(ctx, file.UploadedBy, notifyFileUpdated,
			fmt.Sprintf("File %s status changed to %s", file.FileNumber, file.CurrentStatus), file.ID)
	}
	s.indexFile(file)

	names := s.resolver()
	view := fileView(file)
	view.UploadedByName = names.name(ctx, file.UploadedBy)
	view.AssignedToName = names.name(ctx, file.AssignedTo)
	return view, nil
}

func (s *Service) DeleteFile(ctx context.Context, actor Session, fileID string) error {
	file, err := s.loadFile(ctx, fileID)
	if err != nil {
		return err
	}
	if !policy.CanAct(actor.actor(), policy.ActionDelete, policyFile(file)) {
		return forbidden()
	}

	if err := s.store.DeleteFile(ctx, file.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("File not found")
		}
		return err
	}

	s.notify(ctx, file.AssignedTo, notifyFileDeleted,
		fmt.Sprintf("File %s has been deleted", file.FileNumber), file.ID)
	if s.search != nil {
		s.search.DeleteFile(file.ID)
	}
	return nil
}

// SearchFiles runs a full-text search scoped to files the actor may view.
func (s *Service) SearchFiles(actor Session, text string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(search.Query{
		Text:    text,
		ActorID: actor.UserID,
		IsAdmin: policy.Normalize(actor.Role) == policy.RoleAdmin,
		Limit:   limit,
		Offset:  offset,
	})
}

func (s *Service) loadFile(ctx context.Context, fileID string) (store.File, error) {
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.File{}, notFound("File not found")
		}
		return store.File{}, err
	}
	return file, nil
}

func policyFile(file store.File) policy.File {
	return policy.File{UploadedBy: file.UploadedBy, AssignedTo: file.AssignedTo}
}

// notify records a notification for userID. Failures are logged, not
// surfaced: the file mutation already happened.
func (s *Service) notify(ctx context.Context, userID, notificationType, message, fileID string) {
	notification := store.Notification{
		ID:        util.NewID("ntf"),
		UserID:    userID,
		Type:      notificationType,
		Message:   message,
		FileID:    fileID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertNotification(ctx, notification); err != nil {
		log.Printf("notify: insert %s for user %s: %v", notificationType, userID, err)
	}
}

func (s *Service) indexFile(file store.File) {
	if s.search == nil {
		return
	}
	s.search.IndexFile(search.FileRecord{
		ID:            file.ID,
		FileNumber:    file.FileNumber,
		Remarks:       file.Remarks,
		CurrentStatus: file.CurrentStatus,
		AssignedTo:    file.AssignedTo,
		UploadedBy:    file.UploadedBy,
	})
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}

// Notifications

func (s *Service) Notifications(ctx context.Context, actor Session) ([]NotificationView, error) {
	notifications, err := s.store.ListNotifications(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	views := make([]NotificationView, 0, len(notifications))
	for _, n := range notifications {
		views = append(views, notificationView(n))
	}
	return views, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, actor Session, notificationID string) (NotificationView, error) {
	notification, err := s.store.MarkNotificationRead(ctx, actor.UserID, notificationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotificationView{}, notFound("Notification not found")
		}
		return NotificationView{}, err
	}
	return notificationView(notification), nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, actor Session) ([]NotificationView, error) {
	if err := s.store.MarkAllNotificationsRead(ctx, actor.UserID); err != nil {
		return nil, err
	}
	return s.Notifications(ctx, actor)
}

func (s *Service) DeleteNotification(ctx context.Context, actor Session, notificationID string) error {
	err := s.store.DeleteNotification(ctx, actor.UserID, notificationID)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("Notification not found")
	}
	return err
}

// Statistics

// Stats returns role-scoped aggregate counts. All six statuses are always
// present in the breakdown.
func (s *Service) Stats(ctx context.Context, actor Session) (map[string]any, error) {
	if policy.Normalize(actor.Role) == policy.RoleAdmin {
		totalFiles, err := s.store.CountFiles(ctx)
		if err != nil {
			return nil, err
		}
		totalUsers, err := s.store.CountUsers(ctx)
		if err != nil {
			return nil, err
		}
		counts, err := s.store.CountFilesByStatus(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"total_files":      totalFiles,
			"total_users":      totalUsers,
			"status_breakdown": statusBreakdown(counts),
		}, nil
	}

	assigned, err := s.store.CountFilesAssignedTo(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	uploaded, err := s.store.CountFilesUploadedBy(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	counts, err := s.store.CountFilesByStatusAssignedTo(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"assigned_files":   assigned,
		"uploaded_files":   uploaded,
		"status_breakdown": statusBreakdown(counts),
	}, nil
}

func statusBreakdown(counts map[string]int) map[string]int {
	breakdown := make(map[string]int, len(fileStatuses))
	for _, status := range fileStatuses {
		breakdown[status] = counts[status]
	}
	return breakdown
}

// Users

// Users lists every registered user, for assignment pickers.
func (s *Service) Users(ctx context.Context) ([]UserView, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]UserView, 0, len(users))
	for _, user := range users {
		views = append(views, userView(user))
	}
	return views, nil
}
