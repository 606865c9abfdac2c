package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bprnd-credit-api/internal/models"
	"github.com/noah-isme/bprnd-credit-api/internal/repository"
)

// memDB mimics the guarded SQL statements of the repositories in memory.
type memDB struct {
	mu           sync.Mutex
	courses      map[string]models.Course
	slices       map[string]*models.CreditSlice
	reservations map[string]*models.Reservation
	claims       map[string]*models.CertificationClaim
	events       []models.ClaimEvent
	mappings     map[string]*models.CertificateMapping

	reserveErr  error
	createErr   error
	finalizeErr error
	reserveHook func(n int) // called before each Reserve with the 1-based call number
	reserveN    int
}

func newMemDB() *memDB {
	return &memDB{
		courses:      map[string]models.Course{},
		slices:       map[string]*models.CreditSlice{},
		reservations: map[string]*models.Reservation{},
		claims:       map[string]*models.CertificationClaim{},
		mappings:     map[string]*models.CertificateMapping{},
	}
}

func (m *memDB) ledger() *memLedger     { return &memLedger{m} }
func (m *memDB) claimStore() *memClaims { return &memClaims{m} }
func (m *memDB) certs() *memCerts       { return &memCerts{m} }

func (m *memDB) addSlice(courseID, studentID, umbrella string, completed time.Time, total string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slices[courseID] = &models.CreditSlice{
		CourseID:        courseID,
		StudentID:       studentID,
		UmbrellaKey:     umbrella,
		CompletionDate:  completed,
		TotalCredits:    decimal.RequireFromString(total),
		CreditsConsumed: decimal.Zero,
	}
}

func (m *memDB) available(courseID string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slices[courseID].Available()
}

func (m *memDB) reservationCount(status models.ReservationStatus) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, res := range m.reservations {
		if res.Status == status {
			n++
		}
	}
	return n
}

func (m *memDB) claimCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.claims)
}

type memLedger struct{ *memDB }

func (l *memLedger) Create(ctx context.Context, course *models.Course) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	if _, exists := l.courses[course.ID]; exists {
		return nil
	}
	l.courses[course.ID] = *course
	l.slices[course.ID] = &models.CreditSlice{
		CourseID:        course.ID,
		StudentID:       course.StudentID,
		UmbrellaKey:     course.UmbrellaKey,
		CompletionDate:  course.CompletionDate,
		TotalCredits:    course.TotalCredits,
		CreditsConsumed: decimal.Zero,
	}
	return nil
}

func (l *memLedger) FindByID(ctx context.Context, id string) (*models.Course, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	course, ok := l.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &course, nil
}

func (l *memLedger) ListByStudent(ctx context.Context, studentID string) ([]models.Course, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var list []models.Course
	for _, course := range l.courses {
		if course.StudentID == studentID {
			list = append(list, course)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CompletionDate.Equal(list[j].CompletionDate) {
			return list[i].CompletionDate.Before(list[j].CompletionDate)
		}
		return list[i].ID < list[j].ID
	})
	return list, nil
}

func (l *memLedger) Slice(ctx context.Context, courseID string) (*models.CreditSlice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slice, ok := l.slices[courseID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *slice
	return &copied, nil
}

func (l *memLedger) ListSlices(ctx context.Context, studentID, umbrellaKey string) ([]models.CreditSlice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var list []models.CreditSlice
	for _, slice := range l.slices {
		if slice.StudentID == studentID && (umbrellaKey == "" || slice.UmbrellaKey == umbrellaKey) {
			list = append(list, *slice)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CourseID < list[j].CourseID })
	return list, nil
}

func (l *memLedger) Reserve(ctx context.Context, res *models.Reservation) error {
	l.mu.Lock()
	l.reserveN++
	n, hook := l.reserveN, l.reserveHook
	l.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.reserveErr != nil {
		return l.reserveErr
	}
	slice, ok := l.slices[res.CourseID]
	if !ok || slice.Available().LessThan(res.Amount) {
		return repository.ErrCapacityExceeded
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	res.Status = models.ReservationActive
	slice.CreditsConsumed = slice.CreditsConsumed.Add(res.Amount)
	copied := *res
	l.reservations[res.ID] = &copied
	return nil
}

func (l *memLedger) Release(ctx context.Context, reservationID string, at time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[reservationID]
	if !ok || res.Status != models.ReservationActive {
		return false, nil
	}
	res.Status = models.ReservationReleased
	res.ReleasedAt = &at
	slice := l.slices[res.CourseID]
	slice.CreditsConsumed = slice.CreditsConsumed.Sub(res.Amount)
	return true, nil
}

func (l *memLedger) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.reservations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *res
	return &copied, nil
}

func (l *memLedger) ListByClaim(ctx context.Context, claimID string) ([]models.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var list []models.Reservation
	for _, res := range l.reservations {
		if res.ClaimID == claimID {
			list = append(list, *res)
		}
	}
	return list, nil
}

func (l *memLedger) ListOrphaned(ctx context.Context, before time.Time, limit int) ([]models.Reservation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var list []models.Reservation
	for _, res := range l.reservations {
		if _, ok := l.claims[res.ClaimID]; ok {
			continue
		}
		if res.Status == models.ReservationActive && res.CreatedAt.Before(before) {
			list = append(list, *res)
		}
	}
	return list, nil
}

type memClaims struct{ *memDB }

func (c *memClaims) Create(ctx context.Context, claim *models.CertificationClaim) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return c.createErr
	}
	copied := *claim
	copied.Contributions = append([]models.CourseContribution(nil), claim.Contributions...)
	c.claims[claim.ID] = &copied
	return nil
}

func (c *memClaims) GetByID(ctx context.Context, id string) (*models.CertificationClaim, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	claim, ok := c.claims[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *claim
	copied.Contributions = append([]models.CourseContribution(nil), claim.Contributions...)
	return &copied, nil
}

func (c *memClaims) List(ctx context.Context, filter models.ClaimFilter) ([]models.CertificationClaim, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var list []models.CertificationClaim
	for _, claim := range c.claims {
		if filter.StudentID != "" && claim.StudentID != filter.StudentID {
			continue
		}
		if len(filter.Status) > 0 {
			match := false
			for _, status := range filter.Status {
				match = match || claim.Status == status
			}
			if !match {
				continue
			}
		}
		if filter.POCActedBy != "" && (claim.POCActedBy == nil || *claim.POCActedBy != filter.POCActedBy) {
			continue
		}
		if filter.AdminActedBy != "" && (claim.AdminActedBy == nil || *claim.AdminActedBy != filter.AdminActedBy) {
			continue
		}
		list = append(list, *claim)
	}
	return list, nil
}

func (c *memClaims) Transition(ctx context.Context, params repository.ClaimTransitionParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transitionLocked(params)
}

func (m *memDB) transitionLocked(params repository.ClaimTransitionParams) error {
	claim, ok := m.claims[params.ClaimID]
	if !ok || claim.Status != params.From {
		return sql.ErrNoRows
	}
	claim.Status = params.To
	actor := params.Actor.ID
	at := params.At
	switch params.To {
	case models.ClaimPOCApproved, models.ClaimPOCDeclined:
		claim.POCActedBy, claim.POCActedAt, claim.POCReason = &actor, &at, params.Reason
	case models.ClaimAdminApproved, models.ClaimAdminDeclined:
		claim.AdminActedBy, claim.AdminActedAt, claim.AdminReason = &actor, &at, params.Reason
	}
	m.events = append(m.events, models.ClaimEvent{
		ID: uuid.NewString(), ClaimID: params.ClaimID, FromStatus: params.From, ToStatus: params.To,
		ActorID: actor, ActorRole: params.Actor.Role, Reason: params.Reason, CreatedAt: at,
	})
	return nil
}

func (c *memClaims) Events(ctx context.Context, claimID string) ([]models.ClaimEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var list []models.ClaimEvent
	for _, event := range c.events {
		if event.ClaimID == claimID {
			list = append(list, event)
		}
	}
	return list, nil
}

func (c *memClaims) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := map[models.ClaimStatus]int{}
	for _, claim := range c.claims {
		counts[claim.Status]++
	}
	var rows []models.StatusCount
	for status, total := range counts {
		rows = append(rows, models.StatusCount{Status: status, Total: total})
	}
	return rows, nil
}

func (c *memClaims) CountByUmbrella(ctx context.Context) ([]models.UmbrellaCount, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := map[string]int{}
	for _, claim := range c.claims {
		counts[claim.UmbrellaKey]++
	}
	var rows []models.UmbrellaCount
	for umbrella, total := range counts {
		rows = append(rows, models.UmbrellaCount{UmbrellaKey: umbrella, Total: total})
	}
	return rows, nil
}

type memCerts struct{ *memDB }

// Finalize applies every change or none, like the single SQL transaction.
func (c *memCerts) Finalize(ctx context.Context, params repository.FinalizeParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalizeErr != nil {
		return c.finalizeErr
	}
	mapping := params.Mapping
	claim, ok := c.claims[mapping.ClaimID]
	if !ok || claim.Status != params.Steps[0].From {
		return sql.ErrNoRows
	}
	active := 0
	for _, res := range c.reservations {
		if res.ClaimID == mapping.ClaimID && res.Status == models.ReservationActive {
			active++
		}
	}
	if active != len(mapping.Entries) {
		return repository.ErrReservationsNotActive
	}
	for _, step := range params.Steps {
		if err := c.transitionLocked(step); err != nil {
			return err
		}
	}
	for _, res := range c.reservations {
		if res.ClaimID == mapping.ClaimID && res.Status == models.ReservationActive {
			res.Status = models.ReservationCommitted
		}
	}
	if mapping.ID == "" {
		mapping.ID = uuid.NewString()
	}
	for i := range mapping.Entries {
		mapping.Entries[i].MappingID = mapping.ID
		mapping.Entries[i].Position = i
	}
	copied := *mapping
	c.mappings[mapping.ID] = &copied
	return nil
}

func (c *memCerts) GetByClaimID(ctx context.Context, claimID string) (*models.CertificateMapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, mapping := range c.mappings {
		if mapping.ClaimID == claimID {
			copied := *mapping
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (c *memCerts) GetByID(ctx context.Context, id string) (*models.CertificateMapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	mapping, ok := c.mappings[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *mapping
	return &copied, nil
}

type staticRequirements map[string]decimal.Decimal

func (r staticRequirements) Resolve(ctx context.Context, umbrellaKey string, qualification models.Qualification) (decimal.Decimal, error) {
	credits, ok := r[umbrellaKey+":"+string(qualification)]
	if !ok {
		return decimal.Zero, sql.ErrNoRows
	}
	return credits, nil
}

func (c *memCerts) ListByStudent(ctx context.Context, studentID string) ([]models.CertificateMapping, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var list []models.CertificateMapping
	for _, mapping := range c.mappings {
		if mapping.StudentID == studentID {
			list = append(list, *mapping)
		}
	}
	return list, nil
}
