package storage

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/deusflow/newsagg/internal/model"
)

// Memory keeps everything in maps guarded by one mutex. With a file path it
// can be restored from and saved to a JSON snapshot.
type Memory struct {
	filePath string
	now      func() time.Time

	mu             sync.RWMutex
	articles       map[int64]model.Article
	byURL          map[string]int64
	categories     map[int64]model.Category
	categoryByName map[string]int64
	sources        map[int64]model.Source
	sourceByName   map[string]int64
	users          map[int64]userRecord
	prefs          map[int64]model.Preferences
	seq            sequences
}

type sequences struct {
	Article  int64 `json:"article"`
	Category int64 `json:"category"`
	Source   int64 `json:"source"`
	User     int64 `json:"user"`
}

// userRecord keeps the password hash, which model.User never serializes.
type userRecord struct {
	model.User
	PasswordHash string `json:"password_hash"`
}

type snapshot struct {
	Articles    []model.Article             `json:"articles"`
	Categories  []model.Category            `json:"categories"`
	Sources     []model.Source              `json:"sources"`
	Users       []userRecord                `json:"users"`
	Preferences map[int64]model.Preferences `json:"preferences"`
	Seq         sequences                   `json:"seq"`
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty store. filePath may be empty.
func NewMemory(filePath string) *Memory {
	return &Memory{
		filePath:       filePath,
		now:            time.Now,
		articles:       make(map[int64]model.Article),
		byURL:          make(map[string]int64),
		categories:     make(map[int64]model.Category),
		categoryByName: make(map[string]int64),
		sources:        make(map[int64]model.Source),
		sourceByName:   make(map[string]int64),
		users:          make(map[int64]userRecord),
		prefs:          make(map[int64]model.Preferences),
	}
}

// Load restores the snapshot file. A missing or empty file leaves the store empty.
func (m *Memory) Load() error {
	if m.filePath == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal data file: %w", err)
	}

	for _, c := range snap.Categories {
		m.categories[c.ID] = c
		m.categoryByName[c.Name] = c.ID
	}
	for _, s := range snap.Sources {
		m.sources[s.ID] = s
		m.sourceByName[s.Name] = s.ID
	}
	for _, a := range snap.Articles {
		m.articles[a.ID] = a
		m.byURL[a.URL] = a.ID
	}
	for _, u := range snap.Users {
		m.users[u.ID] = u
	}
	for id, p := range snap.Preferences {
		m.prefs[id] = p
	}
	m.seq = snap.Seq
	return nil
}

// Save writes the snapshot file.
func (m *Memory) Save() error {
	if m.filePath == "" {
		return nil
	}

	m.mu.RLock()
	snap := snapshot{
		Articles:    sortedValues(m.articles),
		Categories:  sortedValues(m.categories),
		Sources:     sortedValues(m.sources),
		Users:       sortedValues(m.users),
		Preferences: make(map[int64]model.Preferences, len(m.prefs)),
		Seq:         m.seq,
	}
	for id, p := range m.prefs {
		snap.Preferences[id] = p
	}
	m.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal data file: %w", err)
	}
	if err := os.WriteFile(m.filePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write data file: %w", err)
	}
	return nil
}

func (m *Memory) Close() error {
	return m.Save()
}

func sortedValues[V any](in map[int64]V) []V {
	ids := make([]int64, 0, len(in))
	for id := range in {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, in[id])
	}
	return out
}

// hydrate fills names from IDs. Callers hold the lock.
func (m *Memory) hydrate(a model.Article) model.Article {
	a.Category = ""
	if c, ok := m.categories[a.CategoryID]; ok {
		a.Category = c.Name
	}
	a.Source = ""
	if s, ok := m.sources[a.SourceID]; ok {
		a.Source = s.Name
	}
	return a
}

func (m *Memory) FindByURL(_ context.Context, url string) (model.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byURL[url]
	if !ok {
		return model.Article{}, ErrNotFound
	}
	return m.hydrate(m.articles[id]), nil
}

func (m *Memory) Insert(_ context.Context, a model.Article) (model.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byURL[a.URL]; exists {
		return model.Article{}, ErrDuplicateURL
	}
	if err := m.checkRefs(a); err != nil {
		return model.Article{}, err
	}

	m.seq.Article++
	a.ID = m.seq.Article
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now().UTC()
	}
	a = m.hydrate(a)
	m.articles[a.ID] = a
	m.byURL[a.URL] = a.ID
	return a, nil
}

func (m *Memory) checkRefs(a model.Article) error {
	if _, ok := m.categories[a.CategoryID]; a.CategoryID != 0 && !ok {
		return fmt.Errorf("category %d: %w", a.CategoryID, ErrNotFound)
	}
	if _, ok := m.sources[a.SourceID]; a.SourceID != 0 && !ok {
		return fmt.Errorf("source %d: %w", a.SourceID, ErrNotFound)
	}
	return nil
}

func (m *Memory) FindUncategorized(_ context.Context) ([]model.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Article
	for _, a := range sortedValues(m.articles) {
		if a.CategoryID == 0 {
			out = append(out, m.hydrate(a))
		}
	}
	return out, nil
}

func (m *Memory) Update(_ context.Context, a model.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.articles[a.ID]
	if !ok {
		return ErrNotFound
	}
	if a.URL != old.URL {
		if _, taken := m.byURL[a.URL]; taken {
			return ErrDuplicateURL
		}
	}
	if err := m.checkRefs(a); err != nil {
		return err
	}

	a.CreatedAt = old.CreatedAt
	delete(m.byURL, old.URL)
	m.byURL[a.URL] = a.ID
	m.articles[a.ID] = m.hydrate(a)
	return nil
}

func (m *Memory) Get(_ context.Context, id int64) (model.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.articles[id]
	if !ok {
		return model.Article{}, ErrNotFound
	}
	return m.hydrate(a), nil
}

func (m *Memory) List(_ context.Context, opts ListOptions) ([]model.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []model.Article
	for _, a := range m.articles {
		a = m.hydrate(a)
		if opts.ActiveOnly && !a.Active {
			continue
		}
		if opts.Category != "" && a.Category != opts.Category {
			continue
		}
		if opts.Source != "" && a.Source != opts.Source {
			continue
		}
		matched = append(matched, a)
	}
	slices.SortFunc(matched, func(x, y model.Article) int {
		if c := y.PublishedAt.Compare(x.PublishedAt); c != 0 {
			return c
		}
		return cmp.Compare(y.ID, x.ID)
	})

	off := min(opts.offset(), len(matched))
	end := min(off+opts.limit(), len(matched))
	return matched[off:end], nil
}

func (m *Memory) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.articles[id]
	if !ok {
		return ErrNotFound
	}
	a.Active = false
	m.articles[id] = a
	return nil
}

func (m *Memory) GetOrCreateCategory(_ context.Context, name string) (model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.categoryByName[name]; ok {
		return m.categories[id], nil
	}
	return m.addCategory(name), nil
}

func (m *Memory) CreateCategory(_ context.Context, name string) (model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.categoryByName[name]; ok {
		return model.Category{}, ErrDuplicateName
	}
	return m.addCategory(name), nil
}

func (m *Memory) addCategory(name string) model.Category {
	m.seq.Category++
	c := model.Category{ID: m.seq.Category, Name: name}
	m.categories[c.ID] = c
	m.categoryByName[name] = c.ID
	return c
}

func (m *Memory) GetOrCreateSource(_ context.Context, src model.Source) (model.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.sourceByName[src.Name]; ok {
		return m.sources[id], nil
	}
	return m.addSource(src), nil
}

func (m *Memory) CreateSource(_ context.Context, src model.Source) (model.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sourceByName[src.Name]; ok {
		return model.Source{}, ErrDuplicateName
	}
	return m.addSource(src), nil
}

func (m *Memory) addSource(src model.Source) model.Source {
	m.seq.Source++
	src.ID = m.seq.Source
	m.sources[src.ID] = src
	m.sourceByName[src.Name] = src.ID
	return src
}

func (m *Memory) ListCategories(_ context.Context) ([]model.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.categories), nil
}

func (m *Memory) ListSources(_ context.Context) ([]model.Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedValues(m.sources), nil
}

func (m *Memory) CreateUser(_ context.Context, u model.User) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Email == u.Email || existing.Username == u.Username {
			return model.User{}, ErrDuplicateUser
		}
	}

	m.seq.User++
	u.ID = m.seq.User
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.now().UTC()
	}
	m.users[u.ID] = userRecord{User: u, PasswordHash: u.PasswordHash}
	return u, nil
}

func (m *Memory) FindUserByLogin(_ context.Context, login string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range sortedValues(m.users) {
		if r.Email == login || r.Username == login {
			return r.user(), nil
		}
	}
	return model.User{}, ErrNotFound
}

func (m *Memory) FindUserByID(_ context.Context, id int64) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return r.user(), nil
}

func (r userRecord) user() model.User {
	u := r.User
	u.PasswordHash = r.PasswordHash
	return u
}

func (m *Memory) Preferences(_ context.Context, userID int64) (model.Preferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.users[userID]; !ok {
		return model.Preferences{}, ErrNotFound
	}
	p := m.prefs[userID]
	return model.Preferences{
		Categories: append([]string{}, p.Categories...),
		Sources:    append([]string{}, p.Sources...),
	}, nil
}

func (m *Memory) SetPreferences(_ context.Context, userID int64, prefs model.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; !ok {
		return ErrNotFound
	}
	m.prefs[userID] = model.Preferences{
		Categories: dedupe(trimAll(prefs.Categories)),
		Sources:    dedupe(trimAll(prefs.Sources)),
	}
	return nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{
		Articles:   len(m.articles),
		Categories: len(m.categories),
		Sources:    len(m.sources),
		Users:      len(m.users),
	}
	for _, a := range m.articles {
		if a.Active {
			st.Active++
		}
		if a.CategoryID == 0 {
			st.Uncategorized++
		}
	}
	return st, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.TrimSpace(v))
	}
	return out
}
