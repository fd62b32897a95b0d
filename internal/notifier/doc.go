// Package notifier provides notification interfaces and implementations
// for tournament standings updates.
//
// The notifier package supports posting refresh announcements to various
// platforms including Twitter. It handles OAuth authentication and
// message formatting within platform length limits.
package notifier
