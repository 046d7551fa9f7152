// Command pgquery validates identifiers and expressions, renders query plans
// to parameterized PostgreSQL and runs simple checks against a database.
//
// Usage:
//
//	pgquery [--config pgquery.yaml] <command>
//
// Configuration is read from pgquery.yaml (discovered upwards from the
// working directory) and PGQUERY_* environment variables. Commands that
// only validate or render do not connect to the database.
package main

func main() {
	Execute()
}
