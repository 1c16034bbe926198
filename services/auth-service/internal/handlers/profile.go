package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/auth"
	"github.com/md-rashed-zaman/lessonbook/libs/availability"
	"github.com/md-rashed-zaman/lessonbook/libs/httpx"
	"github.com/md-rashed-zaman/lessonbook/services/auth-service/internal/audit"
	"github.com/md-rashed-zaman/lessonbook/services/auth-service/internal/storage"
)

const (
	minSlotMinutes = 5
	maxSlotMinutes = 240
	slugAttempts   = 5
)

type completeProfileRequest struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Role         string `json:"role"`
	WorkingStart string `json:"working_start"`
	WorkingEnd   string `json:"working_end"`
	SlotMinutes  int    `json:"slot_minutes"`
	Timezone     string `json:"timezone"`
	CalendarID   string `json:"calendar_id"`
	OfficeEmail  string `json:"office_email"`
	TeacherID    string `json:"teacher_id"`
}

type fieldError struct {
	msg string
}

func (e fieldError) Error() string { return e.msg }

func invalidField(msg string) error { return fieldError{msg: msg} }

func validateTeacher(req completeProfileRequest) (storage.TeacherProfile, error) {
	p := storage.TeacherProfile{
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		CalendarID:  strings.TrimSpace(req.CalendarID),
		OfficeEmail: strings.TrimSpace(req.OfficeEmail),
		SlotMinutes: req.SlotMinutes,
		Timezone:    strings.TrimSpace(req.Timezone),
	}
	if req.WorkingStart == "" || req.WorkingEnd == "" {
		return p, invalidField("working start and end required for teachers")
	}
	start, err := availability.ParseClock(req.WorkingStart)
	if err != nil {
		return p, invalidField("working_start must be HH:MM")
	}
	end, err := availability.ParseClock(req.WorkingEnd)
	if err != nil {
		return p, invalidField("working_end must be HH:MM")
	}
	if !start.Before(end) {
		return p, invalidField("working_end must be after working_start")
	}
	p.WorkingStart, p.WorkingEnd = start.String(), end.String()

	if p.CalendarID == "" {
		return p, invalidField("calendar_id required for teachers")
	}
	if p.OfficeEmail == "" {
		return p, invalidField("office_email required for teachers")
	}
	if !validEmail(p.OfficeEmail) {
		return p, invalidField("office_email is not a valid address")
	}
	if p.SlotMinutes == 0 {
		p.SlotMinutes = int(availability.DefaultSlotDuration / time.Minute)
	}
	if p.SlotMinutes < minSlotMinutes || p.SlotMinutes > maxSlotMinutes {
		return p, invalidField("slot_minutes must be between 5 and 240")
	}
	if p.Timezone == "" {
		p.Timezone = availability.DefaultTimezone
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return p, invalidField("timezone must be a valid IANA zone")
	}
	return p, nil
}

// teacherSlug is the lowercased first name plus a random 1000..9999 suffix.
func teacherSlug(firstName string, randInt func(int) int) string {
	var b strings.Builder
	for _, r := range strings.ToLower(firstName) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if base == "" {
		base = "teacher"
	}
	return base + "-" + strconv.Itoa(1000+randInt(9000))
}

func (h *AuthHandler) CompleteProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.bearer(w, r)
	if !ok {
		return
	}
	var req completeProfileRequest
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.LastName) == "" {
		http.Error(w, "first name and last name are required", http.StatusBadRequest)
		return
	}

	current, err := h.users.GetByID(r.Context(), claims.Subject)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to lookup user", http.StatusInternalServerError)
		return
	}
	role := current.Role
	if req.Role != "" {
		if role, ok = normalizeRole(req.Role); !ok {
			http.Error(w, "role must be teacher or student", http.StatusBadRequest)
			return
		}
	}

	var user storage.User
	switch role {
	case auth.RoleTeacher:
		user, err = h.completeTeacher(r, current.ID, req)
	default:
		user, err = h.completeStudent(r, current.ID, req)
	}
	if err != nil {
		var fe fieldError
		if errors.As(err, &fe) {
			http.Error(w, fe.msg, http.StatusBadRequest)
			return
		}
		h.logger.Error("complete profile failed", "user_id", current.ID, "err", err)
		http.Error(w, "failed to complete profile", http.StatusInternalServerError)
		return
	}
	h.record(r.Context(), audit.EventProfileComplete, user.ID, map[string]any{"role": user.Role})
	h.writeTokens(w, r, http.StatusOK, user)
}

func (h *AuthHandler) completeTeacher(r *http.Request, id string, req completeProfileRequest) (storage.User, error) {
	p, err := validateTeacher(req)
	if err != nil {
		return storage.User{}, err
	}
	for range slugAttempts {
		p.Slug = teacherSlug(p.FirstName, h.randInt)
		user, err := h.users.CompleteTeacher(r.Context(), id, p)
		if errors.Is(err, storage.ErrSlugTaken) {
			continue
		}
		return user, err
	}
	return storage.User{}, errors.New("could not allocate a unique calendar slug")
}

func (h *AuthHandler) completeStudent(r *http.Request, id string, req completeProfileRequest) (storage.User, error) {
	ref := strings.TrimSpace(req.TeacherID)
	if ref == "" {
		return storage.User{}, invalidField("teacher selection required for students")
	}
	teacher, err := h.users.FindTeacher(r.Context(), ref)
	if err != nil {
		if storage.IsNotFound(err) {
			return storage.User{}, invalidField("invalid teacher selection")
		}
		return storage.User{}, err
	}
	return h.users.CompleteStudent(r.Context(), id, storage.StudentProfile{
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		TeacherSlug: teacher.CalendarSlug,
	})
}
