package categorize

import (
	"context"
	"errors"
	"testing"

	"github.com/deusflow/newsagg/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureTable order: экономика, политика, спорт.
func fixtureTable() []Rule {
	return []Rule{
		{Label: "экономика", Keywords: []string{"ставка", "цб", "рубль"}},
		{Label: "политика", Keywords: []string{"политика", "правительство", "выборы"}},
		{Label: "спорт", Keywords: []string{"футбол", "хоккей"}},
	}
}

func TestCategorize(t *testing.T) {
	c := New(fixtureTable(), "другое")

	tests := []struct {
		name string
		text string
		want string
	}{
		{"central bank rate", "ЦБ объявил о повышении ключевой ставки", "экономика"},
		{"first listed wins", "Правительство и ЦБ обсудили курс", "экономика"},
		{"politics only", "Выборы пройдут в сентябре", "политика"},
		{"case insensitive", "ФУТБОЛ: итоги тура", "спорт"},
		{"no match falls back", "Погода на выходные", "другое"},
		{"empty text falls back", "", "другое"},
		{"substring not token", "хоккейный клуб", "спорт"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Categorize(tt.text))
		})
	}
}

func TestCategorize_IsDeterministicAndTotal(t *testing.T) {
	c := New(DefaultTable(), "")

	inputs := []string{"", " ", "ЦБ", "random words", "Election results", "\x00\xff"}
	for _, in := range inputs {
		first := c.Categorize(in)
		assert.NotEmpty(t, first, "input %q", in)
		assert.Equal(t, first, c.Categorize(in), "input %q", in)
	}
}

func TestNew_NormalizesTable(t *testing.T) {
	c := New([]Rule{
		{Label: "", Keywords: []string{"ignored"}},
		{Label: "tech", Keywords: []string{"  GoLang ", "", "   "}},
	}, "")

	assert.Equal(t, DefaultFallback, c.Fallback())
	assert.Equal(t, "tech", c.Categorize("Why golang rocks"))
	assert.Equal(t, DefaultFallback, c.Categorize("ignored"))
	assert.Equal(t, []string{"tech", DefaultFallback}, c.Labels())
}

func TestNew_CopiesTable(t *testing.T) {
	table := fixtureTable()
	c := New(table, "")
	table[0].Label = "mutated"

	assert.Equal(t, "экономика", c.Categorize("ставка"))
}

func TestDefaultTable_EconomyBeforePolitics(t *testing.T) {
	c := New(DefaultTable(), "")

	assert.Equal(t, "economy", c.Categorize("ЦБ объявил о повышении ключевой ставки"))
	assert.Equal(t, "politics", c.Categorize("Парламент принял закон"))
	assert.Equal(t, DefaultFallback, c.Categorize("lorem ipsum"))
}

type fakeStore struct {
	articles   map[int64]model.Article
	categories map[string]model.Category
	updateErr  error
}

func newFakeStore(articles ...model.Article) *fakeStore {
	s := &fakeStore{articles: map[int64]model.Article{}, categories: map[string]model.Category{}}
	for _, a := range articles {
		s.articles[a.ID] = a
	}
	return s
}

func (s *fakeStore) FindUncategorized(context.Context) ([]model.Article, error) {
	var out []model.Article
	for id := int64(1); id <= int64(len(s.articles)); id++ {
		if a, ok := s.articles[id]; ok && !a.Categorized() {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) GetOrCreateCategory(_ context.Context, name string) (model.Category, error) {
	if c, ok := s.categories[name]; ok {
		return c, nil
	}
	c := model.Category{ID: int64(len(s.categories) + 1), Name: name}
	s.categories[name] = c
	return c, nil
}

func (s *fakeStore) Update(_ context.Context, a model.Article) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.articles[a.ID] = a
	return nil
}

func TestUpdateCategories(t *testing.T) {
	// Arrange
	store := newFakeStore(
		model.Article{ID: 1, Title: "ЦБ снизил ставку"},
		model.Article{ID: 2, Title: "Хоккей", Body: "финал"},
		model.Article{ID: 3, Title: "Already", Category: "политика", CategoryID: 9},
		model.Article{ID: 4, Title: "Просто новость"},
	)
	c := New(fixtureTable(), "другое")

	// Act
	n, err := c.UpdateCategories(context.Background(), store)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "экономика", store.articles[1].Category)
	assert.Equal(t, "спорт", store.articles[2].Category)
	assert.Equal(t, "политика", store.articles[3].Category)
	assert.Equal(t, "другое", store.articles[4].Category)
	assert.Equal(t, store.categories["экономика"].ID, store.articles[1].CategoryID)

	again, err := c.UpdateCategories(context.Background(), store)
	require.NoError(t, err)
	assert.Zero(t, again)
}

func TestUpdateCategories_StopsOnStoreError(t *testing.T) {
	store := newFakeStore(model.Article{ID: 1, Title: "x"})
	store.updateErr = errors.New("disk full")

	n, err := New(fixtureTable(), "").UpdateCategories(context.Background(), store)

	require.Error(t, err)
	assert.ErrorIs(t, err, store.updateErr)
	assert.Zero(t, n)
}
