package storage

// Dialects supported by OpenSQL.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		url TEXT NOT NULL DEFAULT '',
		feed_url TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE TABLE IF NOT EXISTS articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL UNIQUE,
		source_id INTEGER REFERENCES sources(id),
		category_id INTEGER REFERENCES categories(id),
		published_at DATETIME NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at);`,
	`CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category_id);`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS user_preferred_categories (
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		PRIMARY KEY (user_id, name)
	);`,
	`CREATE TABLE IF NOT EXISTS user_preferred_sources (
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		PRIMARY KEY (user_id, name)
	);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE
	);`,
	`CREATE TABLE IF NOT EXISTS sources (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(200) NOT NULL UNIQUE,
		url TEXT NOT NULL DEFAULT '',
		feed_url TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE TABLE IF NOT EXISTS articles (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL UNIQUE,
		source_id BIGINT REFERENCES sources(id),
		category_id BIGINT REFERENCES categories(id),
		published_at TIMESTAMPTZ NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at);`,
	`CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category_id);`,
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		username VARCHAR(100) NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS user_preferred_categories (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name VARCHAR(100) NOT NULL,
		PRIMARY KEY (user_id, name)
	);`,
	`CREATE TABLE IF NOT EXISTS user_preferred_sources (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name VARCHAR(200) NOT NULL,
		PRIMARY KEY (user_id, name)
	);`,
}
