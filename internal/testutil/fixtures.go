package testutil

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/slmyyl/xpert-framework/internal/entity"
)

// Address is the fixture target of Person.Address.
type Address struct {
	ID     int64  `dao:"id,id"`
	City   string `dao:"city"`
	Street string `dao:"street"`
}

// Person is the fixture entity of the end-to-end examples.
type Person struct {
	ID      int64               `dao:"id,id"`
	Name    string              `dao:"name"`
	Age     int                 `dao:"age"`
	Email   *string             `dao:"email"`
	Address entity.Ref[Address] `dao:"address_id,ref=Address"`
}

// Order has a generated UUID identifier and belongs to a Person.
type Order struct {
	ID     string             `dao:"id,id,uuid"`
	Person entity.Ref[Person] `dao:"person_id,ref=Person"`
	Total  float64            `dao:"total"`
}

// Tag has a caller-assigned identifier.
type Tag struct {
	Code  string `dao:"code,id,assigned"`
	Label string `dao:"label"`
}

// Fixtures bundles a registry with mappers for the fixture entities.
type Fixtures struct {
	Registry  *entity.Registry
	Addresses *entity.StructMapper[Address]
	People    *entity.StructMapper[Person]
	Orders    *entity.StructMapper[Order]
	Tags      *entity.StructMapper[Tag]
}

// NewFixtures describes the fixture entities into a fresh registry.
func NewFixtures() *Fixtures {
	f := &Fixtures{
		Registry:  entity.NewRegistry(),
		Addresses: entity.MustDescribe[Address]("Address", "address"),
		People:    entity.MustDescribe[Person]("Person", "person", entity.HasMany("orders", "Order", "person_id")),
		Orders:    entity.MustDescribe[Order]("Order", "orders"),
		Tags:      entity.MustDescribe[Tag]("Tag", "tag"),
	}
	err := f.Registry.Register(
		f.Addresses.Descriptor(),
		f.People.Descriptor(),
		f.Orders.Descriptor(),
		f.Tags.Descriptor(),
	)
	if err == nil {
		err = f.Registry.Check()
	}
	if err != nil {
		panic(fmt.Sprintf("fixtures: %v", err))
	}
	return f
}

// Schema is the SQLite DDL for the fixture entities.
var Schema = []string{
	`CREATE TABLE address (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		city TEXT NOT NULL,
		street TEXT
	)`,
	`CREATE TABLE person (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		age INTEGER NOT NULL,
		email TEXT,
		address_id INTEGER REFERENCES address(id)
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		person_id INTEGER NOT NULL REFERENCES person(id),
		total REAL NOT NULL
	)`,
	`CREATE TABLE tag (
		code TEXT PRIMARY KEY,
		label TEXT NOT NULL
	)`,
}

// Seed rows. People are the (1,"Ann",30) (2,"Bob",40) (3,"Cid",30) example.
var seed = []struct {
	query string
	args  []any
}{
	{`INSERT INTO address (id, city, street) VALUES (?, ?, ?)`, []any{1, "Oslo", "Main St"}},
	{`INSERT INTO address (id, city, street) VALUES (?, ?, ?)`, []any{2, "Bergen", "Harbour Rd"}},
	{`INSERT INTO person (id, name, age, email, address_id) VALUES (?, ?, ?, ?, ?)`, []any{1, "Ann", 30, "ann@example.com", 1}},
	{`INSERT INTO person (id, name, age, email, address_id) VALUES (?, ?, ?, ?, ?)`, []any{2, "Bob", 40, nil, 2}},
	{`INSERT INTO person (id, name, age, email, address_id) VALUES (?, ?, ?, ?, ?)`, []any{3, "Cid", 30, nil, nil}},
	{`INSERT INTO orders (id, person_id, total) VALUES (?, ?, ?)`, []any{"o-1", 1, 10.5}},
	{`INSERT INTO orders (id, person_id, total) VALUES (?, ?, ?)`, []any{"o-2", 1, 20.0}},
	{`INSERT INTO orders (id, person_id, total) VALUES (?, ?, ?)`, []any{"o-3", 2, 5.0}},
}

// Execer is the subset of *sql.DB and *sql.Tx the helpers need.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ApplySchema creates the fixture tables.
func ApplySchema(ctx context.Context, db Execer) error {
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply fixture schema: %w", err)
		}
	}
	return nil
}

// Seed creates the fixture tables and inserts the seed rows.
func Seed(ctx context.Context, db Execer) error {
	if err := ApplySchema(ctx, db); err != nil {
		return err
	}
	for _, row := range seed {
		if _, err := db.ExecContext(ctx, row.query, row.args...); err != nil {
			return fmt.Errorf("seed fixtures: %w", err)
		}
	}
	return nil
}

// EntitiesCUE declares the fixture tables for record-based access (CLI).
const EntitiesCUE = `package fixtures

entity: Address: {
	table: "address"
	fields: {
		city:   "string"
		street: "string"
	}
}

entity: Person: {
	table: "person"
	fields: {
		name:    "string"
		age:     "int"
		email:   "string"
		address: {ref: "Address"}
	}
	collections: orders: {target: "Order", mappedBy: "person_id"}
}

entity: Order: {
	table: "orders"
	id: {strategy: "uuid"}
	fields: {
		person: {ref: "Person"}
		total:  "float"
	}
}
`
