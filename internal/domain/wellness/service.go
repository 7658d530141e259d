package wellness

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/phr/ledger/internal/platform/apperr"
)

const dueSoonWindow = 30 * 24 * time.Hour

type Service struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "wellness").Logger(), now: time.Now}
}

// SetClock replaces the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// -- Derivations --

// AgeAt returns the age in whole years on the date of now.
func AgeAt(dob, now time.Time) int {
	years := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

func AgeGroup(age int) string {
	switch {
	case age < 2:
		return AgeInfant
	case age <= 12:
		return AgeChild
	case age <= 17:
		return AgeTeen
	case age <= 59:
		return AgeAdult
	default:
		return AgeSenior
	}
}

// BMI returns kg/m² rounded to one decimal.
func BMI(heightCm, weightKg float64) float64 {
	m := heightCm / 100
	return math.Round(weightKg/(m*m)*10) / 10
}

func BMICategory(bmi float64) string {
	switch {
	case bmi < 18.5:
		return BMIUnderweight
	case bmi < 25:
		return BMINormal
	case bmi < 30:
		return BMIOverweight
	default:
		return BMIObese
	}
}

// Progress returns current/target as a percentage clamped to [0,100].
func Progress(current, target float64) int {
	if target <= 0 {
		return 0
	}
	p := math.Round(current / target * 100)
	return int(math.Max(0, math.Min(100, p)))
}

// VaccinationStatus derives the status of v at now.
func VaccinationStatus(v *Vaccination, now time.Time) string {
	switch {
	case v.AdministeredAt != nil:
		return VaccinationCompleted
	case now.After(v.DueDate):
		return VaccinationOverdue
	case !v.DueDate.After(now.Add(dueSoonWindow)):
		return VaccinationDueSoon
	default:
		return VaccinationScheduled
	}
}

func (s *Service) deriveMember(m *FamilyMember) *FamilyMember {
	m.Age = AgeAt(m.DateOfBirth, s.now())
	m.AgeGroup = AgeGroup(m.Age)
	m.BMI, m.BMICategory = nil, ""
	if m.HeightCm != nil && m.WeightKg != nil {
		bmi := BMI(*m.HeightCm, *m.WeightKg)
		m.BMI = &bmi
		m.BMICategory = BMICategory(bmi)
	}
	return m
}

func deriveGoal(g *Goal) *Goal {
	g.Progress = Progress(g.Current, g.Target)
	g.Completed = g.Current >= g.Target
	return g
}

// -- Family members --

func (s *Service) validateMember(m *FamilyMember) error {
	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" {
		return apperr.Validation("name is required")
	}
	if m.Relationship == "" {
		return apperr.Validation("relationship is required")
	}
	if m.DateOfBirth.IsZero() {
		return apperr.Validation("dateOfBirth is required")
	}
	if m.DateOfBirth.After(s.now()) {
		return apperr.Validation("dateOfBirth must not be in the future")
	}
	if m.HeightCm != nil && *m.HeightCm <= 0 {
		return apperr.Validation("heightCm must be > 0")
	}
	if m.WeightKg != nil && *m.WeightKg <= 0 {
		return apperr.Validation("weightKg must be > 0")
	}
	if m.Allergies == nil {
		m.Allergies = []string{}
	}
	if m.Conditions == nil {
		m.Conditions = []string{}
	}
	return nil
}

func (s *Service) CreateMember(ctx context.Context, m *FamilyMember) error {
	if m.OwnerID == "" {
		return apperr.Validation("ownerId is required")
	}
	if err := s.validateMember(m); err != nil {
		return err
	}
	now := s.now().UTC()
	m.ID = uuid.NewString()
	m.CreatedAt, m.UpdatedAt = now, now
	if err := s.repo.CreateMember(ctx, m); err != nil {
		return err
	}
	s.deriveMember(m)
	s.logger.Debug().Str("owner_id", m.OwnerID).Str("member_id", m.ID).Msg("family member created")
	return nil
}

func (s *Service) GetMember(ctx context.Context, id string) (*FamilyMember, error) {
	m, err := s.repo.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.deriveMember(m), nil
}

// UpdateMember replaces the editable fields of member id with those of m.
func (s *Service) UpdateMember(ctx context.Context, id string, m *FamilyMember) (*FamilyMember, error) {
	cur, err := s.repo.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validateMember(m); err != nil {
		return nil, err
	}
	m.ID, m.OwnerID, m.CreatedAt = cur.ID, cur.OwnerID, cur.CreatedAt
	m.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateMember(ctx, m); err != nil {
		return nil, err
	}
	return s.deriveMember(m), nil
}

func (s *Service) DeleteMember(ctx context.Context, id string) error {
	if err := s.repo.DeleteMember(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("member_id", id).Msg("family member deleted")
	return nil
}

func (s *Service) ListMembers(ctx context.Context, ownerID string) ([]*FamilyMember, error) {
	items, err := s.repo.ListMembers(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, m := range items {
		s.deriveMember(m)
	}
	return items, nil
}

// -- Goals --

func (s *Service) CreateGoal(ctx context.Context, memberID string, g *Goal) error {
	if strings.TrimSpace(g.Title) == "" {
		return apperr.Validation("title is required")
	}
	if g.Target <= 0 {
		return apperr.Validation("target must be > 0")
	}
	if g.Current < 0 {
		return apperr.Validation("current must be >= 0")
	}
	now := s.now().UTC()
	g.ID = uuid.NewString()
	g.MemberID = memberID
	g.CreatedAt, g.UpdatedAt = now, now
	if err := s.repo.CreateGoal(ctx, g); err != nil {
		return err
	}
	deriveGoal(g)
	return nil
}

func (s *Service) GetGoal(ctx context.Context, id string) (*Goal, error) {
	g, err := s.repo.GetGoal(ctx, id)
	if err != nil {
		return nil, err
	}
	return deriveGoal(g), nil
}

// UpdateGoalProgress sets the current value of goal id.
func (s *Service) UpdateGoalProgress(ctx context.Context, id string, current float64) (*Goal, error) {
	if current < 0 {
		return nil, apperr.Validation("current must be >= 0")
	}
	g, err := s.repo.GetGoal(ctx, id)
	if err != nil {
		return nil, err
	}
	wasCompleted := g.Current >= g.Target
	g.Current = current
	g.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateGoal(ctx, g); err != nil {
		return nil, err
	}
	deriveGoal(g)
	if g.Completed && !wasCompleted {
		s.logger.Info().Str("goal_id", g.ID).Str("member_id", g.MemberID).Msg("wellness goal completed")
	}
	return g, nil
}

func (s *Service) ListGoals(ctx context.Context, memberID string) ([]*Goal, error) {
	items, err := s.repo.ListGoals(ctx, memberID)
	if err != nil {
		return nil, err
	}
	for _, g := range items {
		deriveGoal(g)
	}
	return items, nil
}

// -- Vaccinations --

func (s *Service) AddVaccination(ctx context.Context, memberID string, v *Vaccination) error {
	if strings.TrimSpace(v.Vaccine) == "" {
		return apperr.Validation("vaccine is required")
	}
	if v.Dose < 1 {
		return apperr.Validation("dose must be >= 1")
	}
	if v.DueDate.IsZero() {
		return apperr.Validation("dueDate is required")
	}
	if v.AdministeredAt != nil && v.AdministeredAt.After(s.now()) {
		return apperr.Validation("administeredAt must not be in the future")
	}
	v.ID = uuid.NewString()
	v.MemberID = memberID
	if err := s.repo.CreateVaccination(ctx, v); err != nil {
		return err
	}
	v.Status = VaccinationStatus(v, s.now())
	return nil
}

// ListVaccinations returns the member's vaccinations, optionally only those
// with the given derived status.
func (s *Service) ListVaccinations(ctx context.Context, memberID, status string) ([]*Vaccination, error) {
	if status != "" && !vaccinationStatuses[status] {
		return nil, apperr.Validation("unknown vaccination status %q", status)
	}
	items, err := s.repo.ListVaccinations(ctx, memberID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]*Vaccination, 0, len(items))
	for _, v := range items {
		v.Status = VaccinationStatus(v, now)
		if status == "" || v.Status == status {
			out = append(out, v)
		}
	}
	return out, nil
}
