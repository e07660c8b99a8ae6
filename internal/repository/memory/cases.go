package memory

import (
	"context"
	"sort"
	"time"

	"github.com/and161185/fieldsync/internal/errs"
	"github.com/and161185/fieldsync/internal/model"
	"github.com/and161185/fieldsync/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// CaseRepo implements repository.CaseRepository.
type CaseRepo struct{ db *DB }

var _ repository.CaseRepository = CaseRepo{}

// Get loads a case, optionally restricted to an assignee.
func (r CaseRepo) Get(_ context.Context, id, assignee uuid.UUID) (*model.Case, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	c, ok := r.db.cases[id]
	if !ok || (assignee != uuid.Nil && c.AssignedTo != assignee) {
		return nil, errs.ErrNotFound
	}
	out := r.db.withClient(cloneCase(c))
	return &out, nil
}

// Create inserts c unless the id exists.
func (r CaseRepo) Create(_ context.Context, c *model.Case) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.cases[c.ID]; ok {
		return false, nil
	}
	r.db.cases[c.ID] = cloneCase(*c)
	return true, nil
}

// Update writes c when the stored updated_at equals prevUpdatedAt.
func (r CaseRepo) Update(_ context.Context, c *model.Case, prevUpdatedAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.casUpdate(c, prevUpdatedAt)
}

// ListUpdatedSince returns cases updated after f.Since, oldest first.
func (r CaseRepo) ListUpdatedSince(_ context.Context, f model.CaseFilter) ([]model.Case, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	var out []model.Case
	for _, c := range r.db.cases {
		if !c.UpdatedAt.After(f.Since) {
			continue
		}
		if f.AssignedTo != uuid.Nil && c.AssignedTo != f.AssignedTo {
			continue
		}
		out = append(out, r.db.withClient(cloneCase(c)))
	}
	sortCasesByUpdated(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (db *DB) casUpdate(c *model.Case, prevUpdatedAt time.Time) error {
	cur, ok := db.cases[c.ID]
	if !ok {
		return errs.ErrNotFound
	}
	if !cur.UpdatedAt.Equal(prevUpdatedAt) {
		return errs.ErrVersionConflict
	}
	db.cases[c.ID] = cloneCase(*c)
	return nil
}

func (db *DB) withClient(c model.Case) model.Case {
	if ref, ok := db.clients[c.Client.ID]; ok {
		c.Client = ref
	}
	return c
}

// AttachmentRepo implements repository.AttachmentRepository.
type AttachmentRepo struct{ db *DB }

var _ repository.AttachmentRepository = AttachmentRepo{}

// Create inserts a unless the id exists.
func (r AttachmentRepo) Create(_ context.Context, a *model.Attachment) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.attachments[a.ID]; ok {
		return false, nil
	}
	r.db.attachments[a.ID] = *a
	return true, nil
}

// Get loads attachment metadata.
func (r AttachmentRepo) Get(_ context.Context, id uuid.UUID) (*model.Attachment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	a, ok := r.db.attachments[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

// Delete removes metadata.
func (r AttachmentRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.attachments[id]; !ok {
		return errs.ErrNotFound
	}
	delete(r.db.attachments, id)
	return nil
}

// ListByCases groups attachments by case, oldest upload first.
func (r AttachmentRepo) ListByCases(_ context.Context, caseIDs []uuid.UUID) (map[uuid.UUID][]model.Attachment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	want := make(map[uuid.UUID]struct{}, len(caseIDs))
	for _, id := range caseIDs {
		want[id] = struct{}{}
	}
	out := map[uuid.UUID][]model.Attachment{}
	for _, a := range r.db.attachments {
		if _, ok := want[a.CaseID]; ok {
			out[a.CaseID] = append(out[a.CaseID], a)
		}
	}
	for k := range out {
		list := out[k]
		sort.Slice(list, func(i, j int) bool { return list[i].UploadedAt.Before(list[j].UploadedAt) })
	}
	return out, nil
}

// LocationRepo implements repository.LocationRepository.
type LocationRepo struct{ db *DB }

var _ repository.LocationRepository = LocationRepo{}

// Create inserts p unless the id exists.
func (r LocationRepo) Create(_ context.Context, p *model.LocationPoint) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.locations[p.ID]; ok {
		return false, nil
	}
	r.db.locations[p.ID] = *p
	return true, nil
}

// VerificationRepo implements repository.VerificationRepository.
type VerificationRepo struct{ db *DB }

var _ repository.VerificationRepository = VerificationRepo{}

// Complete updates the case and stores the report under one lock.
func (r VerificationRepo) Complete(_ context.Context, c *model.Case, prevUpdatedAt time.Time, rep *model.VerificationReport) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.casUpdate(c, prevUpdatedAt); err != nil {
		return err
	}
	r.db.reports[rep.ID] = *rep
	return nil
}

// AutoSaveRepo implements repository.AutoSaveRepository.
type AutoSaveRepo struct{ db *DB }

var _ repository.AutoSaveRepository = AutoSaveRepo{}

// NewAutoSaveRepo returns the draft store backed by db.
func NewAutoSaveRepo(db *DB) AutoSaveRepo { return AutoSaveRepo{db: db} }

// Save replaces the draft and bumps its version.
func (r AutoSaveRepo) Save(_ context.Context, d *model.AutoSaveDraft) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	k := draftKey{d.CaseID, d.FormType}
	prev := r.db.drafts[k]
	cpy := *d
	cpy.Version = prev.Version + 1
	r.db.drafts[k] = cpy
	return cpy.Version, nil
}

// Get loads the draft.
func (r AutoSaveRepo) Get(_ context.Context, caseID uuid.UUID, ft model.FormType) (*model.AutoSaveDraft, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()
	d, ok := r.db.drafts[draftKey{caseID, ft}]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &d, nil
}

// Delete removes the draft if present.
func (r AutoSaveRepo) Delete(_ context.Context, caseID uuid.UUID, ft model.FormType) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.drafts, draftKey{caseID, ft})
	return nil
}
