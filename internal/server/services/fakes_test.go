package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/patientvault/internal/common"
	"github.com/dmitrijs2005/patientvault/internal/dbx"
	"github.com/dmitrijs2005/patientvault/internal/logging"
	"github.com/dmitrijs2005/patientvault/internal/server/metrics"
	"github.com/dmitrijs2005/patientvault/internal/server/models"
	filesrepo "github.com/dmitrijs2005/patientvault/internal/server/repositories/files"
	groupsrepo "github.com/dmitrijs2005/patientvault/internal/server/repositories/groups"
	patientsrepo "github.com/dmitrijs2005/patientvault/internal/server/repositories/patients"
	usersrepo "github.com/dmitrijs2005/patientvault/internal/server/repositories/users"
	"github.com/google/uuid"
)

// --- in-memory database ---

type memState struct {
	users    map[string]models.User
	patients map[string]models.Patient
	groups   map[string]models.RecordGroup
	files    map[string]models.File
}

func (s memState) clone() memState {
	c := memState{
		users:    make(map[string]models.User, len(s.users)),
		patients: make(map[string]models.Patient, len(s.patients)),
		groups:   make(map[string]models.RecordGroup, len(s.groups)),
		files:    make(map[string]models.File, len(s.files)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.groups {
		c.groups[k] = v
	}
	for k, v := range s.files {
		c.files[k] = v
	}
	return c
}

// memStore backs every fake repository. failFileCreateAt makes the n-th
// file insert (1-based) fail. afterFileList runs after a file listing is
// taken, outside the lock.
type memStore struct {
	mu    sync.Mutex
	state memState
	clock time.Time

	fileCreates      int
	failFileCreateAt int
	failFileDelete   error
	afterFileList    func()
}

func newMemStore() *memStore {
	return &memStore{
		state: memState{
			users:    map[string]models.User{},
			patients: map[string]models.Patient{},
			groups:   map[string]models.RecordGroup{},
			files:    map[string]models.File{},
		},
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// tick returns strictly increasing timestamps so ordering is deterministic.
func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) fileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.files)
}

func (m *memStore) groupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.groups)
}

func (m *memStore) file(id string) (models.File, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.state.files[id]
	return f, ok
}

// --- tx runner ---

// memTx restores the store snapshot when fn fails, like a rollback.
type memTx struct {
	store *memStore
	txs   int
}

func (r *memTx) DB() dbx.DBTX { return nil }

func (r *memTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	r.txs++
	r.store.mu.Lock()
	snapshot := r.store.state.clone()
	r.store.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		r.store.mu.Lock()
		r.store.state = snapshot
		r.store.mu.Unlock()
		return err
	}
	return nil
}

// --- repository manager ---

type memRepoManager struct {
	store *memStore
}

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memRepoManager) Users(dbx.DBTX) usersrepo.Repository          { return &memUsers{m.store} }
func (m *memRepoManager) Patients(dbx.DBTX) patientsrepo.Repository    { return &memPatients{m.store} }
func (m *memRepoManager) Groups(dbx.DBTX) groupsrepo.Repository        { return &memGroups{m.store} }
func (m *memRepoManager) Files(dbx.DBTX) filesrepo.Repository          { return &memFiles{m.store} }

type memUsers struct{ s *memStore }

func (r *memUsers) Create(ctx context.Context, u *models.User) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.state.users {
		if existing.UserName == u.UserName {
			return nil, fmt.Errorf("db error: duplicate username %q", u.UserName)
		}
	}
	c := *u
	c.ID = uuid.NewString()
	c.CreatedAt = r.s.tick()
	r.s.state.users[c.ID] = c
	return &c, nil
}

func (r *memUsers) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.state.users {
		if u.UserName == login {
			c := u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) GetOrCreate(ctx context.Context, login string) (*models.User, error) {
	if u, err := r.GetUserByLogin(ctx, login); err == nil {
		return u, nil
	}
	return r.Create(ctx, &models.User{UserName: login})
}

type memPatients struct{ s *memStore }

func (r *memPatients) GetOrCreateForUser(ctx context.Context, p *models.Patient) (*models.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.state.patients {
		if existing.UserID == p.UserID {
			c := existing
			return &c, nil
		}
	}
	c := *p
	c.ID = uuid.NewString()
	c.CreatedAt = r.s.tick()
	r.s.state.patients[c.ID] = c
	return &c, nil
}

func (r *memPatients) find(match func(models.Patient) bool) (*models.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.state.patients {
		if match(p) {
			c := p
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memPatients) GetByID(ctx context.Context, id string) (*models.Patient, error) {
	return r.find(func(p models.Patient) bool { return p.ID == id })
}

func (r *memPatients) GetByUserID(ctx context.Context, userID string) (*models.Patient, error) {
	return r.find(func(p models.Patient) bool { return p.UserID == userID })
}

func (r *memPatients) GetByRememberTokenHash(ctx context.Context, hash string) (*models.Patient, error) {
	return r.find(func(p models.Patient) bool {
		return p.RememberTokenHash != nil && *p.RememberTokenHash == hash
	})
}

func (r *memPatients) BackfillDemographics(ctx context.Context, id string, d models.Demographics) (*models.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.state.patients[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if p.Name == "" {
		p.Name = d.Name
	}
	if p.DOB == nil {
		p.DOB = d.DOB
	}
	if p.AadhaarHash == nil && d.AadhaarHash != "" {
		h := d.AadhaarHash
		p.AadhaarHash = &h
	}
	if p.MaskedAadhaar == nil && d.MaskedAadhaar != "" {
		m := d.MaskedAadhaar
		p.MaskedAadhaar = &m
	}
	r.s.state.patients[id] = p
	return &p, nil
}

func (r *memPatients) SetRememberTokenHash(ctx context.Context, id string, hash *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.state.patients[id]
	if !ok {
		return common.ErrorNotFound
	}
	p.RememberTokenHash = hash
	r.s.state.patients[id] = p
	return nil
}

type memGroups struct{ s *memStore }

func (r *memGroups) Create(ctx context.Context, g *models.RecordGroup) (*models.RecordGroup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *g
	c.ID = uuid.NewString()
	c.CreatedAt = r.s.tick()
	r.s.state.groups[c.ID] = c
	return &c, nil
}

func (r *memGroups) GetByID(ctx context.Context, id string) (*models.RecordGroup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.state.groups[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &g, nil
}

func (r *memGroups) GetByName(ctx context.Context, patientID, name string) (*models.RecordGroup, error) {
	list, _ := r.ListByPatient(ctx, patientID)
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Name == name {
			return list[i], nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memGroups) ListByPatient(ctx context.Context, patientID string) ([]*models.RecordGroup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.RecordGroup
	for _, g := range r.s.state.groups {
		if g.PatientID == patientID {
			c := g
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memGroups) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.state.groups[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.state.groups, id)
	return nil
}

type memFiles struct{ s *memStore }

var errInjected = errors.New("injected failure")

func (r *memFiles) Create(ctx context.Context, f *models.File) (*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.fileCreates++
	if r.s.failFileCreateAt > 0 && r.s.fileCreates == r.s.failFileCreateAt {
		return nil, errInjected
	}
	c := *f
	c.ID = uuid.NewString()
	c.UploadedAt = r.s.tick()
	r.s.state.files[c.ID] = c
	return &c, nil
}

func (r *memFiles) GetByID(ctx context.Context, id string) (*models.File, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.state.files[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &f, nil
}

func (r *memFiles) List(ctx context.Context, patientID string, filter models.FileFilter) ([]*models.File, error) {
	out := r.list(patientID, filter)
	if hook := r.s.afterFileList; hook != nil {
		hook()
	}
	return out, nil
}

func (r *memFiles) list(patientID string, filter models.FileFilter) []*models.File {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.File
	for _, f := range r.s.state.files {
		if f.PatientID != patientID {
			continue
		}
		if filter.UngroupedOnly && f.GroupID != nil {
			continue
		}
		if filter.GroupID != "" && (f.GroupID == nil || *f.GroupID != filter.GroupID) {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(f.Title), strings.ToLower(filter.Query)) {
			continue
		}
		c := f
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.After(out[j].UploadedAt) })
	return out
}

func (r *memFiles) SetGroup(ctx context.Context, id string, groupID *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.state.files[id]
	if !ok {
		return common.ErrorNotFound
	}
	f.GroupID = groupID
	r.s.state.files[id] = f
	return nil
}

func (r *memFiles) ClearGroup(ctx context.Context, groupID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, f := range r.s.state.files {
		if f.GroupID != nil && *f.GroupID == groupID {
			f.GroupID = nil
			r.s.state.files[id] = f
			n++
		}
	}
	return n, nil
}

func (r *memFiles) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failFileDelete != nil {
		return r.s.failFileDelete
	}
	if _, ok := r.s.state.files[id]; !ok {
		return common.ErrorNotFound
	}
	delete(r.s.state.files, id)
	return nil
}

// --- blob store ---

// memBlobs is an in-memory blobstore.Store. failPutAt makes the n-th Put
// (1-based) fail; failOpen and failDelete fail every call.
type memBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
	puts int
	seq  int

	failPutAt  int
	failOpen   error
	failDelete error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: map[string][]byte{}}
}

func (b *memBlobs) Put(ctx context.Context, patientID, name, contentType string, r io.Reader, size int64) (string, error) {
	b.mu.Lock()
	b.puts++
	fail := b.failPutAt > 0 && b.puts == b.failPutAt
	b.seq++
	key := fmt.Sprintf("patient_files/%s/%d_%s", patientID, b.seq, name)
	b.mu.Unlock()
	if fail {
		return "", errInjected
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.data[key] = data
	b.mu.Unlock()
	return key, nil
}

func (b *memBlobs) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failOpen != nil {
		return nil, b.failOpen
	}
	data, ok := b.data[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *memBlobs) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failDelete != nil {
		return b.failDelete
	}
	delete(b.data, key)
	return nil
}

func (b *memBlobs) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[key]
	return ok
}

func (b *memBlobs) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// --- helpers ---

type fixture struct {
	store *memStore
	tx    *memTx
	rm    *memRepoManager
	blobs *memBlobs
	log   logging.Logger
}

func newFixture() *fixture {
	store := newMemStore()
	return &fixture{
		store: store,
		tx:    &memTx{store: store},
		rm:    &memRepoManager{store: store},
		blobs: newMemBlobs(),
		log:   logging.New(logging.FormatText, io.Discard),
	}
}

// seedPatient creates a user and patient row and returns the patient.
func (f *fixture) seedPatient(name string) *models.Patient {
	ctx := context.Background()
	u, err := f.rm.Users(nil).Create(ctx, &models.User{UserName: "u_" + name})
	if err != nil {
		panic(err)
	}
	p, err := f.rm.Patients(nil).GetOrCreateForUser(ctx, &models.Patient{UserID: u.ID, Name: name})
	if err != nil {
		panic(err)
	}
	return p
}

func upload(name, content string) Upload {
	return Upload{
		Name:        name,
		ContentType: "application/pdf",
		Size:        int64(len(content)),
		Content:     strings.NewReader(content),
	}
}

// counterValue sums every series of the named metric family.
func counterValue(t *testing.T, mx *metrics.Metrics, name string) float64 {
	t.Helper()
	families, err := mx.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}
