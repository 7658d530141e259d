package wellness

import (
	"context"
	"sort"
	"sync"

	"github.com/phr/ledger/internal/platform/apperr"
)

type Repository interface {
	CreateMember(ctx context.Context, m *FamilyMember) error
	GetMember(ctx context.Context, id string) (*FamilyMember, error)
	UpdateMember(ctx context.Context, m *FamilyMember) error
	// DeleteMember removes the member with its goals and vaccinations.
	DeleteMember(ctx context.Context, id string) error
	ListMembers(ctx context.Context, ownerID string) ([]*FamilyMember, error)

	CreateGoal(ctx context.Context, g *Goal) error
	GetGoal(ctx context.Context, id string) (*Goal, error)
	UpdateGoal(ctx context.Context, g *Goal) error
	ListGoals(ctx context.Context, memberID string) ([]*Goal, error)

	CreateVaccination(ctx context.Context, v *Vaccination) error
	ListVaccinations(ctx context.Context, memberID string) ([]*Vaccination, error)
}

// MemoryRepository is an in-process Repository. Stored values are copied
// on the way in and out.
type MemoryRepository struct {
	mu           sync.RWMutex
	members      map[string]FamilyMember
	goals        map[string]Goal
	vaccinations map[string]Vaccination
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		members:      make(map[string]FamilyMember),
		goals:        make(map[string]Goal),
		vaccinations: make(map[string]Vaccination),
	}
}

func copyStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func cloneMember(m FamilyMember) *FamilyMember {
	m.Allergies = copyStrings(m.Allergies)
	m.Conditions = copyStrings(m.Conditions)
	return &m
}

func (r *MemoryRepository) CreateMember(_ context.Context, m *FamilyMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[m.ID]; ok {
		return apperr.Conflict("family member %s already exists", m.ID)
	}
	r.members[m.ID] = *cloneMember(*m)
	return nil
}

func (r *MemoryRepository) GetMember(_ context.Context, id string) (*FamilyMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return nil, apperr.NotFound("family member %s not found", id)
	}
	return cloneMember(m), nil
}

func (r *MemoryRepository) UpdateMember(_ context.Context, m *FamilyMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[m.ID]; !ok {
		return apperr.NotFound("family member %s not found", m.ID)
	}
	r.members[m.ID] = *cloneMember(*m)
	return nil
}

func (r *MemoryRepository) DeleteMember(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[id]; !ok {
		return apperr.NotFound("family member %s not found", id)
	}
	delete(r.members, id)
	for gid, g := range r.goals {
		if g.MemberID == id {
			delete(r.goals, gid)
		}
	}
	for vid, v := range r.vaccinations {
		if v.MemberID == id {
			delete(r.vaccinations, vid)
		}
	}
	return nil
}

func (r *MemoryRepository) ListMembers(_ context.Context, ownerID string) ([]*FamilyMember, error) {
	r.mu.RLock()
	out := []*FamilyMember{}
	for _, m := range r.members {
		if m.OwnerID == ownerID {
			out = append(out, cloneMember(m))
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) CreateGoal(_ context.Context, g *Goal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[g.MemberID]; !ok {
		return apperr.NotFound("family member %s not found", g.MemberID)
	}
	r.goals[g.ID] = *g
	return nil
}

func (r *MemoryRepository) GetGoal(_ context.Context, id string) (*Goal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.goals[id]
	if !ok {
		return nil, apperr.NotFound("goal %s not found", id)
	}
	return &g, nil
}

func (r *MemoryRepository) UpdateGoal(_ context.Context, g *Goal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.goals[g.ID]; !ok {
		return apperr.NotFound("goal %s not found", g.ID)
	}
	r.goals[g.ID] = *g
	return nil
}

func (r *MemoryRepository) ListGoals(_ context.Context, memberID string) ([]*Goal, error) {
	r.mu.RLock()
	out := []*Goal{}
	for _, g := range r.goals {
		if g.MemberID == memberID {
			g := g
			out = append(out, &g)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryRepository) CreateVaccination(_ context.Context, v *Vaccination) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[v.MemberID]; !ok {
		return apperr.NotFound("family member %s not found", v.MemberID)
	}
	r.vaccinations[v.ID] = *v
	return nil
}

// ListVaccinations returns the member's vaccinations by due date.
func (r *MemoryRepository) ListVaccinations(_ context.Context, memberID string) ([]*Vaccination, error) {
	r.mu.RLock()
	out := []*Vaccination{}
	for _, v := range r.vaccinations {
		if v.MemberID == memberID {
			v := v
			out = append(out, &v)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].Dose < out[j].Dose
	})
	return out, nil
}
