package availability

import "time"

const DefaultMinLeadTime = 24 * time.Hour

// BookingPolicy gates lesson creation and cancellation by lead time and ownership.
type BookingPolicy struct {
	MinLeadTime time.Duration
}

func DefaultBookingPolicy() BookingPolicy {
	return BookingPolicy{MinLeadTime: DefaultMinLeadTime}
}

// CanCreate reports whether a lesson starting at lessonStart may still be booked. A lead
// time of exactly MinLeadTime is allowed.
func (p BookingPolicy) CanCreate(now, lessonStart time.Time) bool {
	return lessonStart.Sub(now) >= p.MinLeadTime
}

func (p BookingPolicy) CheckCreate(now, lessonStart time.Time) error {
	if !p.CanCreate(now, lessonStart) {
		return ErrTooLate
	}
	return nil
}

// CanCancel checks ownership before timing, so a mismatched requester is always
// ErrUnauthorized.
func (p BookingPolicy) CanCancel(now, eventStart time.Time, requester, owner string) error {
	if requester == "" || requester != owner {
		return ErrUnauthorized
	}
	if eventStart.Sub(now) < p.MinLeadTime {
		return ErrTooLate
	}
	return nil
}

func CanCreate(now, lessonStart time.Time) bool {
	return DefaultBookingPolicy().CanCreate(now, lessonStart)
}

func CanCancel(now, eventStart time.Time, requester, owner string) error {
	return DefaultBookingPolicy().CanCancel(now, eventStart, requester, owner)
}

// Bookable reports, per slot, whether it also satisfies the policy's lead time at now.
func Bookable(slots []Slot, now time.Time, policy BookingPolicy) []bool {
	out := make([]bool, len(slots))
	for i, s := range slots {
		out[i] = s.Available && policy.CanCreate(now, s.Start)
	}
	return out
}
