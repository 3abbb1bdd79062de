// Package notify is the notification stub behind the preference and
// diagnostic endpoints. It works out which channels a user enabled, renders
// Markdown bodies (HTML for email), and either logs them (dry run) or writes
// them to a configured writer.
package notify
