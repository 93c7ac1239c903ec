// Package fixtures provides a small blog-shaped entity registry and matching
// DDL/seed statements shared by package tests.
package fixtures

import (
	"strings"
	"testing"

	"relgraph/internal/introspection"
	"relgraph/internal/naming"
)

// BlogRegistryYAML describes users, their profile and email, posts and tags.
const BlogRegistryYAML = `
entities:
  - name: User
    table: users
    columns:
      - {name: id, type: int, primary_key: true}
      - {name: name, type: string}
      - {name: age, type: int, nullable: true}
      - {name: role, type: enum, values: [ADMIN, MEMBER]}
      - {name: created_at, type: date, nullable: true}
      - {name: profile_id, type: int, nullable: true}
      - {name: email_id, type: int, nullable: true}
      - {name: settings, type: json, nullable: true}
    relations:
      - {field: profile, target: Profile, cardinality: one-to-one-owner, foreign_key: profile_id, nullable: true}
      - {field: email, target: Email, cardinality: one-to-one-owner, foreign_key: email_id, nullable: true}
      - {field: posts, target: Post, cardinality: one-to-many, foreign_key: author_id}
      - field: tags
        target: Tag
        cardinality: many-to-many
        junction: {table: user_tags, local_column: user_id, remote_column: tag_id}
  - name: Profile
    table: profiles
    columns:
      - {name: id, type: int, primary_key: true}
      - {name: bio, type: string}
    relations:
      - {field: user, target: User, cardinality: one-to-one-inverse, foreign_key: profile_id}
  - name: Email
    table: emails
    columns:
      - {name: id, type: int, primary_key: true}
      - {name: address, type: string}
  - name: Post
    table: posts
    columns:
      - {name: id, type: int, primary_key: true}
      - {name: title, type: string}
      - {name: rating, type: float, nullable: true}
      - {name: published, type: bool}
      - {name: author_id, type: int, nullable: true}
    relations:
      - {field: author, target: User, cardinality: many-to-one, foreign_key: author_id, nullable: true}
  - name: Tag
    table: tags
    columns:
      - {name: id, type: int, primary_key: true}
      - {name: label, type: string}
    relations:
      - field: users
        target: User
        cardinality: many-to-many
        junction: {table: user_tags, local_column: tag_id, remote_column: user_id}
  - name: UserTag
    table: user_tags
    junction: true
    columns:
      - {name: user_id, type: int, primary_key: true}
      - {name: tag_id, type: int, primary_key: true}
`

// BlogRegistry builds the blog registry.
func BlogRegistry(tb testing.TB) *introspection.Registry {
	tb.Helper()
	registry, err := introspection.LoadRegistry(strings.NewReader(BlogRegistryYAML), naming.Default())
	if err != nil {
		tb.Fatalf("load blog registry: %v", err)
	}
	return registry
}

// BlogEntity returns one entity of the blog registry.
func BlogEntity(tb testing.TB, name string) *introspection.Entity {
	tb.Helper()
	entity, err := BlogRegistry(tb).Describe(name)
	if err != nil {
		tb.Fatalf("describe %s: %v", name, err)
	}
	return entity
}

// BlogSchemaSQL creates the blog tables using portable DDL.
var BlogSchemaSQL = []string{
	`CREATE TABLE profiles (id INTEGER PRIMARY KEY, bio TEXT NOT NULL)`,
	`CREATE TABLE emails (id INTEGER PRIMARY KEY, address TEXT NOT NULL)`,
	`CREATE TABLE users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		age INTEGER,
		role TEXT NOT NULL,
		created_at TEXT,
		profile_id INTEGER REFERENCES profiles(id),
		email_id INTEGER REFERENCES emails(id),
		settings TEXT
	)`,
	`CREATE TABLE posts (
		id INTEGER PRIMARY KEY,
		title TEXT NOT NULL,
		rating REAL,
		published BOOLEAN NOT NULL,
		author_id INTEGER REFERENCES users(id)
	)`,
	`CREATE TABLE tags (id INTEGER PRIMARY KEY, label TEXT NOT NULL)`,
	`CREATE TABLE user_tags (
		user_id INTEGER NOT NULL REFERENCES users(id),
		tag_id INTEGER NOT NULL REFERENCES tags(id),
		PRIMARY KEY (user_id, tag_id)
	)`,
}

// BlogSeedSQL inserts four users aged 20, 30, 40 and 50 plus related rows.
var BlogSeedSQL = []string{
	`INSERT INTO profiles (id, bio) VALUES (1, 'first'), (2, 'second')`,
	`INSERT INTO emails (id, address) VALUES (1, 'foo@example.com')`,
	`INSERT INTO users (id, name, age, role, created_at, profile_id, email_id) VALUES
		(1, 'foo', 20, 'ADMIN', '2024-01-01', 1, 1),
		(2, 'bar', 30, 'MEMBER', '2024-02-01', 2, NULL),
		(3, 'baz', 40, 'MEMBER', '2024-03-01', NULL, NULL),
		(4, 'qux_100%', 50, 'ADMIN', NULL, NULL, NULL)`,
	`INSERT INTO posts (id, title, rating, published, author_id) VALUES
		(1, 'hello', 4.5, TRUE, 1),
		(2, 'world', 3.0, FALSE, 1),
		(3, 'again', NULL, TRUE, 2),
		(4, 'orphan', 1.0, TRUE, NULL)`,
	`INSERT INTO tags (id, label) VALUES (1, 'go'), (2, 'sql')`,
	`INSERT INTO user_tags (user_id, tag_id) VALUES (1, 1), (1, 2), (2, 2)`,
}
