package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/dbx"
	"github.com/qfolders/qfolders/internal/server/authprovider"
	"github.com/qfolders/qfolders/internal/server/blobstore"
	"github.com/qfolders/qfolders/internal/server/datastore"
	"github.com/qfolders/qfolders/internal/server/models"
	"github.com/qfolders/qfolders/internal/server/repositories/contributions"
	"github.com/qfolders/qfolders/internal/server/repositories/folders"
	"github.com/qfolders/qfolders/internal/server/repositories/orphans"
	"github.com/qfolders/qfolders/internal/server/repositories/questions"
	"github.com/qfolders/qfolders/internal/server/repositories/repomanager"
)

// --- auth provider ---

type fakeProvider struct {
	mu sync.Mutex

	signInOut *authprovider.Tokens
	signInErr error

	refreshOut   *authprovider.Tokens
	refreshErr   error
	refreshCalls int

	signUpErr  error
	resendErr  error
	signOutErr error

	signOutCalls int
	lastRedirect string
}

func (f *fakeProvider) SignIn(ctx context.Context, email, password string) (*authprovider.Tokens, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	return f.signInOut, nil
}

func (f *fakeProvider) Refresh(ctx context.Context, refreshToken string) (*authprovider.Tokens, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshOut, nil
}

func (f *fakeProvider) SignUp(ctx context.Context, email, password, redirectURL string) error {
	f.lastRedirect = redirectURL
	return f.signUpErr
}

func (f *fakeProvider) ResendConfirmation(ctx context.Context, email, redirectURL string) error {
	f.lastRedirect = redirectURL
	return f.resendErr
}

func (f *fakeProvider) SignOut(ctx context.Context, accessToken string) error {
	f.signOutCalls++
	return f.signOutErr
}

// --- data store ---

// fakeDataStore runs units of work directly; tokens listed in rejected fail
// the way a row-level-security denial does.
type fakeDataStore struct {
	mu             sync.Mutex
	rejected       map[string]bool
	scopedTokens   []string
	privilegedRuns int
	privilegedErr  error
}

func newFakeDataStore() *fakeDataStore {
	return &fakeDataStore{rejected: map[string]bool{}}
}

func (f *fakeDataStore) Scoped(ctx context.Context, accessToken string, fn datastore.TxFunc) error {
	f.mu.Lock()
	f.scopedTokens = append(f.scopedTokens, accessToken)
	rejected := f.rejected[accessToken]
	f.mu.Unlock()
	if rejected {
		return common.ErrorUnauthorized
	}
	return fn(ctx, nil)
}

func (f *fakeDataStore) Privileged(ctx context.Context, fn datastore.TxFunc) error {
	f.mu.Lock()
	f.privilegedRuns++
	err := f.privilegedErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(ctx, nil)
}

// --- repositories ---

type fakeRepos struct {
	repomanager.RepositoryManager

	caps          repomanager.Capabilities
	folders       *memFolders
	questions     *memQuestions
	contributions contributions.Repository
	orphans       *memOrphans
}

func newFakeRepos() *fakeRepos {
	qs := &memQuestions{rows: map[string]*models.Question{}}
	return &fakeRepos{
		folders:       &memFolders{rows: map[string]*models.Folder{}, questions: qs},
		questions:     qs,
		contributions: newMemContributions(),
		orphans:       &memOrphans{rows: map[string]*models.OrphanBlob{}},
	}
}

func (f *fakeRepos) Capabilities() repomanager.Capabilities { return f.caps }
func (f *fakeRepos) Folders(dbx.DBTX) folders.Repository { return f.folders }
func (f *fakeRepos) Questions(dbx.DBTX) questions.Repository { return f.questions }
func (f *fakeRepos) Contributions(dbx.DBTX) contributions.Repository { return f.contributions }
func (f *fakeRepos) Orphans(dbx.DBTX) orphans.Repository { return f.orphans }

type memFolders struct {
	mu        sync.Mutex
	rows      map[string]*models.Folder
	seq       int
	questions *memQuestions
}

func (m *memFolders) Create(ctx context.Context, f *models.Folder) (*models.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	cp := *f
	cp.ID = fmt.Sprintf("f%d", m.seq)
	cp.CreatedAt = time.Date(2025, 1, 1, 0, m.seq, 0, 0, time.UTC)
	m.rows[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memFolders) List(ctx context.Context) ([]*models.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Folder
	for _, f := range m.rows {
		cp := *f
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memFolders) Get(ctx context.Context, id string) (*models.Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *f
	return &cp, nil
}

func (m *memFolders) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return common.ErrorNotFound
	}
	delete(m.rows, id)
	m.questions.deleteFolder(id)
	return nil
}

type memQuestions struct {
	mu        sync.Mutex
	rows      map[string]*models.Question
	seq       int
	updateErr error
}

func (m *memQuestions) Create(ctx context.Context, q *models.Question) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	q.CreatedAt = time.Date(2025, 1, 1, 0, m.seq, 0, 0, time.UTC)
	q.UpdatedAt = q.CreatedAt
	cp := *q
	m.rows[q.ID] = &cp
	return q, nil
}

func (m *memQuestions) Get(ctx context.Context, id string) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *q
	return &cp, nil
}

func (m *memQuestions) ListByFolder(ctx context.Context, folderID string) ([]*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Question
	for _, q := range m.rows {
		if q.FolderID == folderID {
			cp := *q
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memQuestions) Update(ctx context.Context, q *models.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.rows[q.ID]; !ok {
		return common.ErrorNotFound
	}
	cp := *q
	m.rows[q.ID] = &cp
	return nil
}

func (m *memQuestions) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return common.ErrorNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memQuestions) AttachmentsInFolder(ctx context.Context, folderID string) ([]*models.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Attachment
	for _, q := range m.rows {
		if q.FolderID == folderID && q.Attachment != nil {
			a := *q.Attachment
			out = append(out, &a)
		}
	}
	return out, nil
}

func (m *memQuestions) deleteFolder(folderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, q := range m.rows {
		if q.FolderID == folderID {
			delete(m.rows, id)
		}
	}
}

// memContributions has no atomic upsert, so every step of the
// lookup-then-branch sequence is a separate critical section, like separate
// round trips to a remote store.
type memContributions struct {
	mu      sync.Mutex
	rows    map[string]*models.ContributionRecord
	inserts int
	hook    func(step string)
}

func newMemContributions() *memContributions {
	return &memContributions{rows: map[string]*models.ContributionRecord{}}
}

func contributionKey(userID string, day time.Time) string {
	return userID + "|" + day.Format("2006-01-02")
}

func (m *memContributions) step(name string) {
	if m.hook != nil {
		m.hook(name)
	}
}

func (m *memContributions) Find(ctx context.Context, userID string, day time.Time) (*models.ContributionRecord, error) {
	m.step("find")
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[contributionKey(userID, day)]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memContributions) Insert(ctx context.Context, userID string, day time.Time) error {
	m.step("insert")
	m.mu.Lock()
	defer m.mu.Unlock()
	k := contributionKey(userID, day)
	if _, ok := m.rows[k]; ok {
		return common.ErrorAlreadyExists
	}
	m.inserts++
	m.rows[k] = &models.ContributionRecord{UserID: userID, Date: day, Count: 1}
	return nil
}

func (m *memContributions) Increment(ctx context.Context, userID string, day time.Time) error {
	m.step("increment")
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[contributionKey(userID, day)]
	if !ok {
		return common.ErrorNotFound
	}
	r.Count++
	return nil
}

func (m *memContributions) SelectRange(ctx context.Context, userID string, from, to time.Time) ([]*models.ContributionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ContributionRecord
	for _, r := range m.rows {
		if r.UserID == userID && !r.Date.Before(from) && !r.Date.After(to) {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *memContributions) count(userID string, day time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[contributionKey(userID, day)]; ok {
		return r.Count
	}
	return 0
}

// upsertContributions adds the atomic path on top of memContributions.
type upsertContributions struct {
	*memContributions
	upserts int
}

func (u *upsertContributions) Upsert(ctx context.Context, userID string, day time.Time) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.upserts++
	k := contributionKey(userID, day)
	r, ok := u.rows[k]
	if !ok {
		r = &models.ContributionRecord{UserID: userID, Date: day}
		u.rows[k] = r
	}
	r.Count++
	return r.Count, nil
}

type memOrphans struct {
	mu   sync.Mutex
	rows map[string]*models.OrphanBlob
	seq  int
}

func (m *memOrphans) Record(ctx context.Context, key, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.rows {
		if o.StorageKey == key {
			o.Reason = reason
			return nil
		}
	}
	m.seq++
	id := fmt.Sprintf("o%d", m.seq)
	m.rows[id] = &models.OrphanBlob{ID: id, StorageKey: key, Reason: reason}
	return nil
}

func (m *memOrphans) List(ctx context.Context, limit int) ([]*models.OrphanBlob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.OrphanBlob
	for _, o := range m.rows {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memOrphans) MarkAttempt(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.rows[id]
	if !ok {
		return common.ErrorNotFound
	}
	o.Attempts++
	o.Reason = reason
	return nil
}

func (m *memOrphans) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memOrphans) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for _, o := range m.rows {
		keys = append(keys, o.StorageKey)
	}
	sort.Strings(keys)
	return keys
}

// --- blob store ---

var errBlobDown = errors.New("connection refused")

// countingBlobs wraps the in-memory store, counts every call and can be told
// to fail.
type countingBlobs struct {
	*blobstore.Memory

	mu         sync.Mutex
	calls      int
	putErr     error
	failDelete map[string]bool
}

func newCountingBlobs() *countingBlobs {
	return &countingBlobs{Memory: blobstore.NewMemory(), failDelete: map[string]bool{}}
}

func (c *countingBlobs) inc() {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
}

func (c *countingBlobs) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *countingBlobs) Put(ctx context.Context, key string, body []byte, contentType string) error {
	c.inc()
	if c.putErr != nil {
		return c.putErr
	}
	return c.Memory.Put(ctx, key, body, contentType)
}

func (c *countingBlobs) Get(ctx context.Context, key string) (*blobstore.Object, error) {
	c.inc()
	return c.Memory.Get(ctx, key)
}

func (c *countingBlobs) Delete(ctx context.Context, key string) error {
	c.inc()
	c.mu.Lock()
	fail := c.failDelete[key]
	c.mu.Unlock()
	if fail {
		return errBlobDown
	}
	return c.Memory.Delete(ctx, key)
}
