package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/deusflow/newsagg/internal/model"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQL is the database/sql backed Store for SQLite and PostgreSQL. Unique
// constraints on articles.url and on category and source names are the
// authoritative duplicate guard.
type SQL struct {
	db      *sql.DB
	dialect string
	sb      sq.StatementBuilderType
	now     func() time.Time
}

var _ Store = (*SQL)(nil)

// OpenSQL connects, pings and initializes the schema. For sqlite the dsn is
// a file path (":memory:" or empty for an in-memory database) or a full
// "file:" URI.
func OpenSQL(ctx context.Context, dialect, dsn string) (*SQL, error) {
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case DialectSQLite:
		db, err = sql.Open("sqlite", sqliteDSN(dsn))
		if err == nil {
			db.SetMaxOpenConns(1)
		}
	case DialectPostgres:
		db, err = sql.Open("postgres", dsn)
	default:
		return nil, fmt.Errorf("unsupported storage dialect %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := NewSQL(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQL wraps an open handle and creates missing tables.
func NewSQL(ctx context.Context, db *sql.DB, dialect string) (*SQL, error) {
	schema := sqliteSchema
	if dialect == DialectPostgres {
		schema = postgresSchema
	}

	s := &SQL{
		db:      db,
		dialect: dialect,
		sb:      sq.StatementBuilder.PlaceholderFormat(placeholderFor(dialect)).RunWith(db),
		now:     time.Now,
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return s, nil
}

func placeholderFor(dialect string) sq.PlaceholderFormat {
	if dialect == DialectPostgres {
		return sq.Dollar
	}
	return sq.Question
}

func sqliteDSN(path string) string {
	const common = "_pragma=foreign_keys(1)&_time_format=sqlite"
	switch {
	case strings.HasPrefix(path, "file:"):
		return path
	case path == "" || path == ":memory:":
		return "file::memory:?" + common
	default:
		return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&%s", path, common)
	}
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
		}
	}
	return false
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func (s *SQL) selectArticles() sq.SelectBuilder {
	return s.sb.Select(
		"a.id", "a.title", "a.body", "a.url",
		"a.source_id", "COALESCE(s.name, '')",
		"a.category_id", "COALESCE(c.name, '')",
		"a.published_at", "a.active", "a.created_at",
	).
		From("articles a").
		LeftJoin("sources s ON s.id = a.source_id").
		LeftJoin("categories c ON c.id = a.category_id")
}

func scanArticle(row sq.RowScanner) (model.Article, error) {
	var (
		a                    model.Article
		sourceID, categoryID sql.NullInt64
		published, created   any
	)
	err := row.Scan(&a.ID, &a.Title, &a.Body, &a.URL,
		&sourceID, &a.Source, &categoryID, &a.Category,
		&published, &a.Active, &created)
	if err != nil {
		return model.Article{}, err
	}
	a.SourceID = sourceID.Int64
	a.CategoryID = categoryID.Int64
	a.PublishedAt = parseDBTime(published)
	a.CreatedAt = parseDBTime(created)
	return a, nil
}

func (s *SQL) queryArticles(ctx context.Context, q sq.SelectBuilder) ([]model.Article, error) {
	rows, err := q.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var out []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQL) FindByURL(ctx context.Context, url string) (model.Article, error) {
	a, err := scanArticle(s.selectArticles().Where(sq.Eq{"a.url": url}).QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Article{}, ErrNotFound
	}
	if err != nil {
		return model.Article{}, fmt.Errorf("find article by url: %w", err)
	}
	return a, nil
}

func (s *SQL) Get(ctx context.Context, id int64) (model.Article, error) {
	a, err := scanArticle(s.selectArticles().Where(sq.Eq{"a.id": id}).QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Article{}, ErrNotFound
	}
	if err != nil {
		return model.Article{}, fmt.Errorf("get article %d: %w", id, err)
	}
	return a, nil
}

func (s *SQL) Insert(ctx context.Context, a model.Article) (model.Article, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}

	var id int64
	err := s.sb.Insert("articles").
		Columns("title", "body", "url", "source_id", "category_id", "published_at", "active", "created_at").
		Values(a.Title, a.Body, a.URL, nullID(a.SourceID), nullID(a.CategoryID), a.PublishedAt.UTC(), a.Active, a.CreatedAt.UTC()).
		Suffix("ON CONFLICT (url) DO NOTHING RETURNING id").
		QueryRowContext(ctx).
		Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		return model.Article{}, ErrDuplicateURL
	case err != nil:
		return model.Article{}, fmt.Errorf("insert article: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *SQL) FindUncategorized(ctx context.Context) ([]model.Article, error) {
	return s.queryArticles(ctx, s.selectArticles().Where(sq.Eq{"a.category_id": nil}).OrderBy("a.id"))
}

func (s *SQL) Update(ctx context.Context, a model.Article) error {
	res, err := s.sb.Update("articles").
		Set("title", a.Title).
		Set("body", a.Body).
		Set("url", a.URL).
		Set("source_id", nullID(a.SourceID)).
		Set("category_id", nullID(a.CategoryID)).
		Set("published_at", a.PublishedAt.UTC()).
		Set("active", a.Active).
		Where(sq.Eq{"id": a.ID}).
		ExecContext(ctx)
	if isUniqueViolation(err) {
		return ErrDuplicateURL
	}
	if err != nil {
		return fmt.Errorf("update article %d: %w", a.ID, err)
	}
	return expectAffected(res)
}

func (s *SQL) Delete(ctx context.Context, id int64) error {
	res, err := s.sb.Update("articles").Set("active", false).Where(sq.Eq{"id": id}).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete article %d: %w", id, err)
	}
	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) List(ctx context.Context, opts ListOptions) ([]model.Article, error) {
	q := s.selectArticles()
	if opts.ActiveOnly {
		q = q.Where(sq.Eq{"a.active": true})
	}
	if opts.Category != "" {
		q = q.Where(sq.Eq{"c.name": opts.Category})
	}
	if opts.Source != "" {
		q = q.Where(sq.Eq{"s.name": opts.Source})
	}
	q = q.OrderBy("a.published_at DESC", "a.id DESC").
		Limit(uint64(opts.limit())).
		Offset(uint64(opts.offset()))
	return s.queryArticles(ctx, q)
}

func (s *SQL) GetOrCreateCategory(ctx context.Context, name string) (model.Category, error) {
	_, err := s.sb.Insert("categories").Columns("name").Values(name).
		Suffix("ON CONFLICT (name) DO NOTHING").
		ExecContext(ctx)
	if err != nil {
		return model.Category{}, fmt.Errorf("create category %q: %w", name, err)
	}

	var c model.Category
	err = s.sb.Select("id", "name").From("categories").Where(sq.Eq{"name": name}).
		QueryRowContext(ctx).Scan(&c.ID, &c.Name)
	if err != nil {
		return model.Category{}, fmt.Errorf("find category %q: %w", name, err)
	}
	return c, nil
}

func (s *SQL) CreateCategory(ctx context.Context, name string) (model.Category, error) {
	c := model.Category{Name: name}
	err := s.sb.Insert("categories").Columns("name").Values(name).
		Suffix("RETURNING id").
		QueryRowContext(ctx).Scan(&c.ID)
	if isUniqueViolation(err) {
		return model.Category{}, ErrDuplicateName
	}
	if err != nil {
		return model.Category{}, fmt.Errorf("create category %q: %w", name, err)
	}
	return c, nil
}

func (s *SQL) GetOrCreateSource(ctx context.Context, src model.Source) (model.Source, error) {
	_, err := s.sb.Insert("sources").Columns("name", "url", "feed_url").
		Values(src.Name, src.URL, src.FeedURL).
		Suffix("ON CONFLICT (name) DO NOTHING").
		ExecContext(ctx)
	if err != nil {
		return model.Source{}, fmt.Errorf("create source %q: %w", src.Name, err)
	}

	var out model.Source
	err = s.sb.Select("id", "name", "url", "feed_url").From("sources").Where(sq.Eq{"name": src.Name}).
		QueryRowContext(ctx).Scan(&out.ID, &out.Name, &out.URL, &out.FeedURL)
	if err != nil {
		return model.Source{}, fmt.Errorf("find source %q: %w", src.Name, err)
	}
	return out, nil
}

func (s *SQL) CreateSource(ctx context.Context, src model.Source) (model.Source, error) {
	err := s.sb.Insert("sources").Columns("name", "url", "feed_url").
		Values(src.Name, src.URL, src.FeedURL).
		Suffix("RETURNING id").
		QueryRowContext(ctx).Scan(&src.ID)
	if isUniqueViolation(err) {
		return model.Source{}, ErrDuplicateName
	}
	if err != nil {
		return model.Source{}, fmt.Errorf("create source %q: %w", src.Name, err)
	}
	return src, nil
}

func (s *SQL) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.sb.Select("id", "name").From("categories").OrderBy("id").QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQL) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.sb.Select("id", "name", "url", "feed_url").From("sources").OrderBy("id").QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []model.Source
	for rows.Next() {
		var src model.Source
		if err := rows.Scan(&src.ID, &src.Name, &src.URL, &src.FeedURL); err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

func (s *SQL) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		dst *int
		q   sq.SelectBuilder
	}{
		{&st.Articles, s.sb.Select("COUNT(*)").From("articles")},
		{&st.Active, s.sb.Select("COUNT(*)").From("articles").Where(sq.Eq{"active": true})},
		{&st.Uncategorized, s.sb.Select("COUNT(*)").From("articles").Where(sq.Eq{"category_id": nil})},
		{&st.Categories, s.sb.Select("COUNT(*)").From("categories")},
		{&st.Sources, s.sb.Select("COUNT(*)").From("sources")},
		{&st.Users, s.sb.Select("COUNT(*)").From("users")},
	}
	for _, c := range counts {
		if err := c.q.QueryRowContext(ctx).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("stats: %w", err)
		}
	}
	return st, nil
}

func parseDBTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		return parseDBTimeString(t)
	case []byte:
		return parseDBTimeString(string(t))
	default:
		return time.Time{}
	}
}

func parseDBTimeString(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
