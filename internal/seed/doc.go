// Package seed fills a running roster server with demo data through its
// HTTP API.
//
// A run registers userN accounts, creates published missions spread over a
// number of days, and assigns the first two seeded users to every mission.
// Fixtures in JSON-with-comments can rename users and supply mission
// titles, locations, and positions.
package seed
