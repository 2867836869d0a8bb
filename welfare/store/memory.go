// Package store provides an in-memory welfare.Store implementation
// (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/welfare-engine/welfare"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements welfare.TxStore with maps guarded by a single RWMutex.
// Transition CAS and usage idempotency match the SQLite semantics exactly,
// so domain tests run against either backend.
type Memory struct {
	mu           sync.RWMutex
	programs     map[welfare.ProgramID]welfare.Program
	subPrograms  map[welfare.SubProgramID]welfare.SubProgram
	claimants    map[welfare.ClaimantID]welfare.Claimant
	claims       map[welfare.ClaimID]welfare.Claim
	comments     map[welfare.ClaimID][]welfare.Comment
	usage        []welfare.UsageRecord
	usageByClaim map[welfare.ClaimID]bool
}

func NewMemory() *Memory {
	return &Memory{
		programs:     make(map[welfare.ProgramID]welfare.Program),
		subPrograms:  make(map[welfare.SubProgramID]welfare.SubProgram),
		claimants:    make(map[welfare.ClaimantID]welfare.Claimant),
		claims:       make(map[welfare.ClaimID]welfare.Claim),
		comments:     make(map[welfare.ClaimID][]welfare.Comment),
		usageByClaim: make(map[welfare.ClaimID]bool),
	}
}

var _ welfare.TxStore = (*Memory)(nil)

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) SaveProgram(_ context.Context, p welfare.Program) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.programs[p.ID] = p
	return nil
}

func (m *Memory) GetProgram(_ context.Context, id welfare.ProgramID) (*welfare.Program, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.programs[id]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) GetProgramByCode(_ context.Context, code string) (*welfare.Program, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.programs {
		if p.Code == code {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListPrograms(_ context.Context, activeOnly bool) ([]welfare.Program, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []welfare.Program
	for _, p := range m.programs {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (m *Memory) DeleteProgram(_ context.Context, id welfare.ProgramID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sp := range m.subPrograms {
		if sp.ProgramID != id {
			continue
		}
		if m.subProgramInUseLocked(sp.ID) {
			return welfare.ErrProgramInUse
		}
	}
	for spID, sp := range m.subPrograms {
		if sp.ProgramID == id {
			delete(m.subPrograms, spID)
		}
	}
	delete(m.programs, id)
	return nil
}

func (m *Memory) SaveSubProgram(_ context.Context, sp welfare.SubProgram) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subPrograms[sp.ID] = sp
	return nil
}

func (m *Memory) GetSubProgram(_ context.Context, id welfare.SubProgramID) (*welfare.SubProgram, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sp, ok := m.subPrograms[id]; ok {
		cp := sp
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) ListSubPrograms(_ context.Context, programID welfare.ProgramID) ([]welfare.SubProgram, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []welfare.SubProgram
	for _, sp := range m.subPrograms {
		if sp.ProgramID == programID {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) DeleteSubProgram(_ context.Context, id welfare.SubProgramID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subProgramInUseLocked(id) {
		return welfare.ErrProgramInUse
	}
	delete(m.subPrograms, id)
	return nil
}

func (m *Memory) subProgramInUseLocked(id welfare.SubProgramID) bool {
	for _, c := range m.claims {
		if c.SubProgramID == id {
			return true
		}
	}
	return false
}

func (m *Memory) SaveClaimant(_ context.Context, c welfare.Claimant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimants[c.ID] = c
	return nil
}

func (m *Memory) GetClaimant(_ context.Context, id welfare.ClaimantID) (*welfare.Claimant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.claimants[id]; ok {
		cp := c
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) ListClaimants(_ context.Context) ([]welfare.Claimant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []welfare.Claimant
	for _, c := range m.claimants {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// CLAIMS
// =============================================================================

func (m *Memory) CreateClaim(_ context.Context, c welfare.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims[c.ID] = cloneClaim(c)
	return nil
}

func (m *Memory) GetClaim(_ context.Context, id welfare.ClaimID) (*welfare.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.claims[id]; ok {
		cp := cloneClaim(c)
		return &cp, nil
	}
	return nil, nil
}

func (m *Memory) ListClaimsByClaimant(_ context.Context, id welfare.ClaimantID) ([]welfare.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []welfare.Claim
	for _, c := range m.claims {
		if c.ClaimantID == id {
			out = append(out, cloneClaim(c))
		}
	}
	sortClaims(out)
	return out, nil
}

func (m *Memory) ListClaimsByStatus(_ context.Context, status welfare.ClaimStatus) ([]welfare.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []welfare.Claim
	for _, c := range m.claims {
		if c.Status == status {
			out = append(out, cloneClaim(c))
		}
	}
	sortClaims(out)
	return out, nil
}

// ApplyClaimMutation implements the status-guarded compare-and-set.
func (m *Memory) ApplyClaimMutation(_ context.Context, mut welfare.ClaimMutation) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.claims[mut.ID]
	if !ok {
		return false, nil
	}
	guardMatched := false
	for _, from := range mut.FromStatuses {
		if c.Status == from {
			guardMatched = true
			break
		}
	}
	if !guardMatched {
		return false, nil
	}

	c.Status = mut.To
	if mut.AdminApproverID != nil {
		c.AdminApproverID = mut.AdminApproverID
		c.AdminApprovedAt = mut.AdminApprovedAt
	}
	if mut.ManagerApproverID != nil {
		c.ManagerApproverID = mut.ManagerApproverID
		c.ManagerApprovedAt = mut.ManagerApprovedAt
	}
	if mut.ApprovedAmount != nil {
		amount := *mut.ApprovedAmount
		c.ApprovedAmount = &amount
	}
	if mut.RejectedBy != nil {
		c.RejectedBy = mut.RejectedBy
		c.RejectionReason = mut.RejectionReason
	}
	if mut.CompletedAt != nil {
		c.CompletedAt = mut.CompletedAt
	}
	c.UpdatedAt = mut.UpdatedAt

	m.claims[mut.ID] = c
	return true, nil
}

func (m *Memory) AppendComment(_ context.Context, c welfare.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments[c.ClaimID] = append(m.comments[c.ClaimID], c)
	return nil
}

func (m *Memory) ListComments(_ context.Context, claimID welfare.ClaimID) ([]welfare.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]welfare.Comment, len(m.comments[claimID]))
	copy(out, m.comments[claimID])
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// USAGE (append-only)
// =============================================================================

func (m *Memory) AppendUsage(_ context.Context, rec welfare.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendUsageLocked(rec)
}

func (m *Memory) appendUsageLocked(rec welfare.UsageRecord) error {
	if m.usageByClaim[rec.ClaimID] {
		return welfare.ErrDuplicateUsage
	}
	m.usage = append(m.usage, rec)
	m.usageByClaim[rec.ClaimID] = true
	return nil
}

func (m *Memory) LoadUsage(_ context.Context, claimantID welfare.ClaimantID, subProgramID welfare.SubProgramID) ([]welfare.UsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []welfare.UsageRecord
	for _, rec := range m.usage {
		if rec.ClaimantID == claimantID && rec.SubProgramID == subProgramID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) UsageExists(_ context.Context, claimID welfare.ClaimID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.usageByClaim[claimID], nil
}

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.programs = make(map[welfare.ProgramID]welfare.Program)
	m.subPrograms = make(map[welfare.SubProgramID]welfare.SubProgram)
	m.claimants = make(map[welfare.ClaimantID]welfare.Claimant)
	m.claims = make(map[welfare.ClaimID]welfare.Claim)
	m.comments = make(map[welfare.ClaimID][]welfare.Comment)
	m.usage = nil
	m.usageByClaim = make(map[welfare.ClaimID]bool)
	return nil
}

// =============================================================================
// TRANSACTIONS - Simulated with snapshot + rollback on error
// =============================================================================

func (m *Memory) WithTx(_ context.Context, fn func(welfare.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshotLocked()
	view := &txView{parent: m}
	if err := fn(view); err != nil {
		m.restoreLocked(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	claims       map[welfare.ClaimID]welfare.Claim
	usage        []welfare.UsageRecord
	usageByClaim map[welfare.ClaimID]bool
}

func (m *Memory) snapshotLocked() memorySnapshot {
	claims := make(map[welfare.ClaimID]welfare.Claim, len(m.claims))
	for k, v := range m.claims {
		claims[k] = cloneClaim(v)
	}
	usage := make([]welfare.UsageRecord, len(m.usage))
	copy(usage, m.usage)
	byClaim := make(map[welfare.ClaimID]bool, len(m.usageByClaim))
	for k, v := range m.usageByClaim {
		byClaim[k] = v
	}
	return memorySnapshot{claims: claims, usage: usage, usageByClaim: byClaim}
}

func (m *Memory) restoreLocked(s memorySnapshot) {
	m.claims = s.claims
	m.usage = s.usage
	m.usageByClaim = s.usageByClaim
}

// txView reuses the parent's maps directly; the parent lock is already held
// for the whole transaction, and rollback restores the snapshot.
type txView struct {
	parent *Memory
}

var _ welfare.Store = (*txView)(nil)

func (v *txView) SaveProgram(ctx context.Context, p welfare.Program) error {
	v.parent.programs[p.ID] = p
	return nil
}
func (v *txView) GetProgram(_ context.Context, id welfare.ProgramID) (*welfare.Program, error) {
	if p, ok := v.parent.programs[id]; ok {
		cp := p
		return &cp, nil
	}
	return nil, nil
}
func (v *txView) GetProgramByCode(_ context.Context, code string) (*welfare.Program, error) {
	for _, p := range v.parent.programs {
		if p.Code == code {
			cp := p
			return &cp, nil
		}
	}
	return nil, nil
}
func (v *txView) ListPrograms(ctx context.Context, activeOnly bool) ([]welfare.Program, error) {
	var out []welfare.Program
	for _, p := range v.parent.programs {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}
func (v *txView) DeleteProgram(_ context.Context, id welfare.ProgramID) error {
	delete(v.parent.programs, id)
	return nil
}
func (v *txView) SaveSubProgram(_ context.Context, sp welfare.SubProgram) error {
	v.parent.subPrograms[sp.ID] = sp
	return nil
}
func (v *txView) GetSubProgram(_ context.Context, id welfare.SubProgramID) (*welfare.SubProgram, error) {
	if sp, ok := v.parent.subPrograms[id]; ok {
		cp := sp
		return &cp, nil
	}
	return nil, nil
}
func (v *txView) ListSubPrograms(_ context.Context, programID welfare.ProgramID) ([]welfare.SubProgram, error) {
	var out []welfare.SubProgram
	for _, sp := range v.parent.subPrograms {
		if sp.ProgramID == programID {
			out = append(out, sp)
		}
	}
	return out, nil
}
func (v *txView) DeleteSubProgram(_ context.Context, id welfare.SubProgramID) error {
	delete(v.parent.subPrograms, id)
	return nil
}
func (v *txView) SaveClaimant(_ context.Context, c welfare.Claimant) error {
	v.parent.claimants[c.ID] = c
	return nil
}
func (v *txView) GetClaimant(_ context.Context, id welfare.ClaimantID) (*welfare.Claimant, error) {
	if c, ok := v.parent.claimants[id]; ok {
		cp := c
		return &cp, nil
	}
	return nil, nil
}
func (v *txView) ListClaimants(_ context.Context) ([]welfare.Claimant, error) {
	var out []welfare.Claimant
	for _, c := range v.parent.claimants {
		out = append(out, c)
	}
	return out, nil
}
func (v *txView) CreateClaim(_ context.Context, c welfare.Claim) error {
	v.parent.claims[c.ID] = cloneClaim(c)
	return nil
}
func (v *txView) GetClaim(_ context.Context, id welfare.ClaimID) (*welfare.Claim, error) {
	if c, ok := v.parent.claims[id]; ok {
		cp := cloneClaim(c)
		return &cp, nil
	}
	return nil, nil
}
func (v *txView) ListClaimsByClaimant(_ context.Context, id welfare.ClaimantID) ([]welfare.Claim, error) {
	var out []welfare.Claim
	for _, c := range v.parent.claims {
		if c.ClaimantID == id {
			out = append(out, cloneClaim(c))
		}
	}
	sortClaims(out)
	return out, nil
}
func (v *txView) ListClaimsByStatus(_ context.Context, status welfare.ClaimStatus) ([]welfare.Claim, error) {
	var out []welfare.Claim
	for _, c := range v.parent.claims {
		if c.Status == status {
			out = append(out, cloneClaim(c))
		}
	}
	sortClaims(out)
	return out, nil
}
func (v *txView) ApplyClaimMutation(_ context.Context, mut welfare.ClaimMutation) (bool, error) {
	c, ok := v.parent.claims[mut.ID]
	if !ok {
		return false, nil
	}
	matched := false
	for _, from := range mut.FromStatuses {
		if c.Status == from {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	c.Status = mut.To
	if mut.AdminApproverID != nil {
		c.AdminApproverID = mut.AdminApproverID
		c.AdminApprovedAt = mut.AdminApprovedAt
	}
	if mut.ManagerApproverID != nil {
		c.ManagerApproverID = mut.ManagerApproverID
		c.ManagerApprovedAt = mut.ManagerApprovedAt
	}
	if mut.ApprovedAmount != nil {
		amount := *mut.ApprovedAmount
		c.ApprovedAmount = &amount
	}
	if mut.RejectedBy != nil {
		c.RejectedBy = mut.RejectedBy
		c.RejectionReason = mut.RejectionReason
	}
	if mut.CompletedAt != nil {
		c.CompletedAt = mut.CompletedAt
	}
	c.UpdatedAt = mut.UpdatedAt
	v.parent.claims[mut.ID] = c
	return true, nil
}
func (v *txView) AppendComment(_ context.Context, c welfare.Comment) error {
	v.parent.comments[c.ClaimID] = append(v.parent.comments[c.ClaimID], c)
	return nil
}
func (v *txView) ListComments(_ context.Context, claimID welfare.ClaimID) ([]welfare.Comment, error) {
	out := make([]welfare.Comment, len(v.parent.comments[claimID]))
	copy(out, v.parent.comments[claimID])
	return out, nil
}
func (v *txView) AppendUsage(_ context.Context, rec welfare.UsageRecord) error {
	return v.parent.appendUsageLocked(rec)
}
func (v *txView) LoadUsage(_ context.Context, claimantID welfare.ClaimantID, subProgramID welfare.SubProgramID) ([]welfare.UsageRecord, error) {
	var out []welfare.UsageRecord
	for _, rec := range v.parent.usage {
		if rec.ClaimantID == claimantID && rec.SubProgramID == subProgramID {
			out = append(out, rec)
		}
	}
	return out, nil
}
func (v *txView) UsageExists(_ context.Context, claimID welfare.ClaimID) (bool, error) {
	return v.parent.usageByClaim[claimID], nil
}

// =============================================================================
// HELPERS
// =============================================================================

func cloneClaim(c welfare.Claim) welfare.Claim {
	cp := c
	if c.Documents != nil {
		cp.Documents = make([]welfare.Document, len(c.Documents))
		copy(cp.Documents, c.Documents)
	}
	return cp
}

func sortClaims(claims []welfare.Claim) {
	sort.Slice(claims, func(i, j int) bool {
		if !claims[i].SubmittedAt.Equal(claims[j].SubmittedAt) {
			return claims[i].SubmittedAt.Before(claims[j].SubmittedAt)
		}
		return claims[i].ID < claims[j].ID
	})
}
