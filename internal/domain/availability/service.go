package availability

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/platform/apperr"
	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/internal/platform/cache"
	"github.com/carebook/carebook/internal/platform/db"
)

// DoctorDirectory resolves doctors. Satisfied by identity.Service.
type DoctorDirectory interface {
	DoctorExists(ctx context.Context, id uuid.UUID) error
	DoctorIDForUser(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

// BookedLister reports the spans held by live appointments that overlap
// [from, to). Satisfied by the booking repository.
type BookedLister interface {
	BookedSpans(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Span, error)
}

// SlotConfig controls slot derivation.
type SlotConfig struct {
	DurationMinutes int
	Policy          Policy
	// Location is the clinic time zone used to map instants onto weekdays.
	Location *time.Location
}

type Service struct {
	repo     Repository
	doctors  DoctorDirectory
	booked   BookedLister
	cache    cache.Cache
	cacheTTL time.Duration
	slots    SlotConfig
}

func NewService(repo Repository, doctors DoctorDirectory, booked BookedLister, c cache.Cache, cacheTTL time.Duration, slots SlotConfig) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	if slots.Location == nil {
		slots.Location = time.UTC
	}
	if slots.DurationMinutes == 0 {
		slots.DurationMinutes = DefaultSlotMinutes
	}
	if slots.Policy == "" {
		slots.Policy = PolicyFit
	}
	return &Service{repo: repo, doctors: doctors, booked: booked, cache: c, cacheTTL: cacheTTL, slots: slots}
}

// SlotConfig returns the effective slot settings.
func (s *Service) SlotConfig() SlotConfig { return s.slots }

// SlotLength is how long one booked slot holds the doctor.
func (s *Service) SlotLength() time.Duration {
	return time.Duration(s.slots.DurationMinutes) * time.Minute
}

// timetableKey names the cache entry for one timetable revision. A publish
// moves the doctor to a new revision, so entries filled from older reads are
// never looked up again and expire by TTL.
func timetableKey(doctorID uuid.UUID, revision int64) string {
	return "timetable:" + doctorID.String() + ":" + strconv.FormatInt(revision, 10)
}

// storageErr maps a vanished doctor row to NotFound.
func storageErr(op string, doctorID uuid.UUID, err error) error {
	if db.IsNoRows(err) {
		return apperr.NotFound("doctor %s not found", doctorID)
	}
	return apperr.Storage(op, err)
}

// -- Availability Store --

// Publish replaces the doctor's intervals for one weekday. Only the doctor
// who owns the profile or an admin may publish.
func (s *Service) Publish(ctx context.Context, doctorID uuid.UUID, day Weekday, intervals []Interval) ([]Interval, error) {
	if doctorID == uuid.Nil {
		return nil, apperr.Validation("doctor_id is required")
	}
	if !day.Valid() {
		return nil, apperr.Validation("weekday is required")
	}
	normalized, err := normalizeIntervals(intervals)
	if err != nil {
		return nil, err
	}

	if err := s.doctors.DoctorExists(ctx, doctorID); err != nil {
		return nil, err
	}
	if err := s.authorizePublish(ctx, doctorID); err != nil {
		return nil, err
	}

	rev, err := s.repo.Replace(ctx, doctorID, day, normalized)
	if err != nil {
		return nil, storageErr("replace availability", doctorID, err)
	}
	// Readers have moved on to rev; dropping the previous entry only frees
	// memory early.
	if err := s.cache.Delete(ctx, timetableKey(doctorID, rev-1)); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("timetable cache cleanup failed")
	}

	zerolog.Ctx(ctx).Info().
		Str("doctor_id", doctorID.String()).
		Str("weekday", day.String()).
		Int("intervals", len(normalized)).
		Int64("revision", rev).
		Msg("availability published")
	return normalized, nil
}

// normalizeIntervals sorts by start and rejects empty, inverted or
// overlapping intervals. Touching intervals are allowed.
func normalizeIntervals(in []Interval) ([]Interval, error) {
	out := make([]Interval, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })

	for i, iv := range out {
		if iv.Start < 0 || iv.End > endOfDay {
			return nil, apperr.Validation("interval %s is outside the day", iv)
		}
		if iv.Start >= iv.End {
			return nil, apperr.Validation("interval %s must start before it ends", iv)
		}
		if i > 0 && iv.Start < out[i-1].End {
			return nil, apperr.Validation("interval %s overlaps %s", iv, out[i-1])
		}
	}
	return out, nil
}

func (s *Service) authorizePublish(ctx context.Context, doctorID uuid.UUID) error {
	if auth.IsAdmin(ctx) {
		return nil
	}
	callerID, err := auth.CallerID(ctx)
	if err != nil {
		return err
	}
	own, err := s.doctors.DoctorIDForUser(ctx, callerID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Forbidden("only the doctor or an admin may publish availability")
		}
		return err
	}
	if own != doctorID {
		return apperr.Forbidden("only the doctor or an admin may publish availability")
	}
	return nil
}

// Read returns one weekday. An empty list means closed.
func (s *Service) Read(ctx context.Context, doctorID uuid.UUID, day Weekday) ([]Interval, error) {
	if !day.Valid() {
		return nil, apperr.Validation("unknown weekday")
	}
	if err := s.doctors.DoctorExists(ctx, doctorID); err != nil {
		return nil, err
	}
	items, err := s.repo.Read(ctx, doctorID, day)
	if err != nil {
		return nil, apperr.Storage("read availability", err)
	}
	if items == nil {
		items = []Interval{}
	}
	return items, nil
}

// ReadAll returns the published week. The current revision is read from the
// store on every call and only a cache entry for that revision is served;
// cache failures fall through to the database.
func (s *Service) ReadAll(ctx context.Context, doctorID uuid.UUID) (*Timetable, error) {
	log := zerolog.Ctx(ctx)
	if err := s.doctors.DoctorExists(ctx, doctorID); err != nil {
		return nil, err
	}
	rev, err := s.repo.Revision(ctx, doctorID)
	if err != nil {
		return nil, storageErr("read timetable revision", doctorID, err)
	}

	key := timetableKey(doctorID, rev)
	var cached Timetable
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("timetable cache read failed")
	}
	if hit {
		return &cached, nil
	}

	tt, err := s.repo.ReadAll(ctx, doctorID)
	if err != nil {
		return nil, storageErr("read timetable", doctorID, err)
	}
	// file under the revision the rows were read at, which may be newer than rev
	key = timetableKey(doctorID, tt.Revision)
	if err := s.cache.Set(ctx, key, tt, s.cacheTTL); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("timetable cache write failed")
	}
	return tt, nil
}

// -- Slot Deriver --

// Slots returns the free slot start times for doctorID on the calendar date
// of date, in the clinic time zone. A slot is dropped when its span overlaps
// any live appointment, not only one starting at the same instant.
func (s *Service) Slots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]TimeOfDay, error) {
	if err := s.doctors.DoctorExists(ctx, doctorID); err != nil {
		return nil, err
	}

	dayStart := s.startOfDay(date)
	intervals, err := s.repo.Read(ctx, doctorID, WeekdayOf(dayStart))
	if err != nil {
		return nil, apperr.Storage("read availability", err)
	}
	slots, err := DeriveSlots(intervals, s.slots.DurationMinutes, s.slots.Policy)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 || s.booked == nil {
		return slots, nil
	}

	length := s.SlotLength()
	taken, err := s.booked.BookedSpans(ctx, doctorID, dayStart, dayStart.AddDate(0, 0, 1).Add(length))
	if err != nil {
		return nil, apperr.Storage("list booked slots", err)
	}
	free := slots[:0]
	for _, sl := range slots {
		start := sl.On(dayStart)
		if !overlapsAny(Span{Start: start, End: start.Add(length)}, taken) {
			free = append(free, sl)
		}
	}
	return free, nil
}

// startOfDay is local midnight of t's calendar date in the clinic zone.
func (s *Service) startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.slots.Location)
}

func overlapsAny(span Span, taken []Span) bool {
	for _, t := range taken {
		if span.Overlaps(t) {
			return true
		}
	}
	return false
}

// IsBookable checks that instant is the start of a derived slot on the
// doctor's published hours for its clinic-time date. Slots are compared as
// instants, so a wall-clock time that occurs twice on a DST change matches
// only the occurrence the slot grid produces. It does not check whether the
// slot is already taken. Always reads the store, never the cache.
func (s *Service) IsBookable(ctx context.Context, doctorID uuid.UUID, instant time.Time) error {
	local := instant.In(s.slots.Location)
	if local.Second() != 0 || local.Nanosecond() != 0 {
		return apperr.Validation("appointment_date must fall on a whole minute")
	}

	dayStart := s.startOfDay(local)
	day := WeekdayOf(dayStart)
	intervals, err := s.repo.Read(ctx, doctorID, day)
	if err != nil {
		return apperr.Storage("read availability", err)
	}
	slots, err := DeriveSlots(intervals, s.slots.DurationMinutes, s.slots.Policy)
	if err != nil {
		return err
	}
	if !slotStartsAt(slots, dayStart, instant) {
		return apperr.Validation("%s %s is not within the doctor's published availability",
			day, TimeOfDayOf(local))
	}
	return nil
}
