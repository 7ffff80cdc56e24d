// Package repository holds the gorm data access of the applet platform. Each
// repository wraps a *gorm.DB; WithTx rebinds it to an open transaction.
package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories groups the repositories of the default database. Answers are
// not here: they are opened per database with NewAnswerRepository.
type Repositories struct {
	db *gorm.DB

	Applet    *AppletRepository
	Event     *EventRepository
	Subject   *SubjectRepository
	Access    *AccessRepository
	User      *UserRepository
	Note      *NoteRepository
	Alert     *AlertRepository
	Job       *JobRepository
	Device    *DeviceRepository
	Workspace *WorkspaceRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:        db,
		Applet:    NewAppletRepository(db),
		Event:     NewEventRepository(db),
		Subject:   NewSubjectRepository(db),
		Access:    NewAccessRepository(db),
		User:      NewUserRepository(db),
		Note:      NewNoteRepository(db),
		Alert:     NewAlertRepository(db),
		Job:       NewJobRepository(db),
		Device:    NewDeviceRepository(db),
		Workspace: NewWorkspaceRepository(db),
	}
}

// DB returns the handle the repositories were built on.
func (r *Repositories) DB() *gorm.DB {
	return r.db
}

// WithTx returns repositories bound to tx.
func (r *Repositories) WithTx(tx *gorm.DB) *Repositories {
	return NewRepositories(tx)
}

// notFound maps gorm's not-found error to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// byOrder sorts on the "order" column, which is a reserved word.
func byOrder() clause.OrderByColumn {
	return clause.OrderByColumn{Column: clause.Column{Name: "order"}}
}
