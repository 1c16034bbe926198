package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/libs/outbox"
)

var ErrSlugTaken = errors.New("calendar slug taken")

type User struct {
	ID               string
	Email            string
	PasswordHash     string
	FirstName        string
	LastName         string
	Role             string
	CalendarSlug     string
	WorkingStart     string
	WorkingEnd       string
	SlotMinutes      int
	Timezone         string
	WeekendsExcluded bool
	CalendarID       string
	OfficeEmail      string
	Plan             string
	TeacherSlug      string
	FirebaseUID      string
	GoogleConnected  bool
	ProfileCompleted bool
}

// ExternalLogin is an identity asserted by Google or Firebase.
type ExternalLogin struct {
	Email       string
	FirstName   string
	LastName    string
	Role        string
	FirebaseUID string
}

// TeacherProfile is what a teacher submits when completing their profile.
type TeacherProfile struct {
	FirstName    string
	LastName     string
	Slug         string
	WorkingStart string
	WorkingEnd   string
	SlotMinutes  int
	Timezone     string
	CalendarID   string
	OfficeEmail  string
}

type StudentProfile struct {
	FirstName   string
	LastName    string
	TeacherSlug string
}

type UserRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewUserRepository(pool *db.Pool, outboxRepo *outbox.Repository) *UserRepository {
	return &UserRepository{pool: pool, outbox: outboxRepo}
}

const userColumns = `
	id::text, email, COALESCE(password_hash, ''), first_name, last_name, role,
	COALESCE(calendar_slug, ''), COALESCE(working_start, ''), COALESCE(working_end, ''),
	slot_minutes, timezone, weekends_excluded, COALESCE(calendar_id, ''),
	COALESCE(office_email, ''), plan, COALESCE(teacher_slug, ''), COALESCE(firebase_uid, ''),
	google_token IS NOT NULL, profile_completed
`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Role,
		&u.CalendarSlug,
		&u.WorkingStart,
		&u.WorkingEnd,
		&u.SlotMinutes,
		&u.Timezone,
		&u.WeekendsExcluded,
		&u.CalendarID,
		&u.OfficeEmail,
		&u.Plan,
		&u.TeacherSlug,
		&u.FirebaseUID,
		&u.GoogleConnected,
		&u.ProfileCompleted,
	)
	return u, err
}

// Create inserts a password user and the registration event in one transaction.
func (r *UserRepository) Create(ctx context.Context, user User, evt outbox.Event) (User, error) {
	var created User
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		var err error
		created, err = scanUser(tx.QueryRow(ctx, `
			INSERT INTO users (id, email, password_hash, first_name, last_name, role)
			VALUES ($1, lower($2), NULLIF($3, ''), $4, $5, $6)
			RETURNING `+userColumns,
			user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Role,
		))
		if err != nil {
			return err
		}
		return r.outbox.Insert(ctx, tx, evt)
	})
	return created, err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email = lower($1)
	`, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1
	`, id))
}

// UpsertExternal creates the user on first sign-in. Existing rows keep their role and
// any names already set; a Firebase uid is attached when missing.
func (r *UserRepository) UpsertExternal(ctx context.Context, login ExternalLogin) (User, bool, error) {
	var (
		u       User
		created bool
	)
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, first_name, last_name, role, firebase_uid)
		VALUES (lower($1), $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (email) DO UPDATE SET
			first_name   = CASE WHEN users.first_name = '' THEN EXCLUDED.first_name ELSE users.first_name END,
			last_name    = CASE WHEN users.last_name = '' THEN EXCLUDED.last_name ELSE users.last_name END,
			firebase_uid = COALESCE(users.firebase_uid, EXCLUDED.firebase_uid),
			updated_at   = now()
		RETURNING `+userColumns+`, (xmax = 0)
	`, login.Email, login.FirstName, login.LastName, login.Role, login.FirebaseUID)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&u.Role,
		&u.CalendarSlug,
		&u.WorkingStart,
		&u.WorkingEnd,
		&u.SlotMinutes,
		&u.Timezone,
		&u.WeekendsExcluded,
		&u.CalendarID,
		&u.OfficeEmail,
		&u.Plan,
		&u.TeacherSlug,
		&u.FirebaseUID,
		&u.GoogleConnected,
		&u.ProfileCompleted,
		&created,
	)
	return u, created, err
}

// FindTeacher resolves a teacher by calendar slug or user id.
func (r *UserRepository) FindTeacher(ctx context.Context, ref string) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE role = 'teacher' AND calendar_slug IS NOT NULL
			AND (calendar_slug = $1 OR id::text = $1)
		LIMIT 1
	`, ref))
}

// CompleteTeacher returns ErrSlugTaken when p.Slug collides with another teacher.
func (r *UserRepository) CompleteTeacher(ctx context.Context, id string, p TeacherProfile) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `
		UPDATE users SET
			role              = 'teacher',
			first_name        = $2,
			last_name         = $3,
			calendar_slug     = COALESCE(calendar_slug, $4),
			working_start     = $5,
			working_end       = $6,
			slot_minutes      = $7,
			timezone          = $8,
			calendar_id       = $9,
			office_email      = $10,
			teacher_slug      = NULL,
			profile_completed = TRUE,
			updated_at        = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, p.FirstName, p.LastName, p.Slug, p.WorkingStart, p.WorkingEnd,
		p.SlotMinutes, p.Timezone, p.CalendarID, p.OfficeEmail,
	))
	if db.IsUniqueViolation(err) {
		return User{}, ErrSlugTaken
	}
	return u, err
}

func (r *UserRepository) CompleteStudent(ctx context.Context, id string, p StudentProfile) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `
		UPDATE users SET
			role              = 'student',
			first_name        = $2,
			last_name         = $3,
			teacher_slug      = $4,
			calendar_slug     = NULL,
			working_start     = NULL,
			working_end       = NULL,
			calendar_id       = NULL,
			office_email      = NULL,
			profile_completed = TRUE,
			updated_at        = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, p.FirstName, p.LastName, p.TeacherSlug,
	))
}

func IsNotFound(err error) bool {
	return db.IsNotFound(err)
}
