// Package domain contains core concepts of the pair-chat engine.
// This file defines User entities and the tombstone reference used
// when an author has been removed but their history survives.
package domain

import "time"

// User is the identity-store view of an account.
// Deactivation flips Active; removal erases the record entirely and
// later reads resolve to a tombstone AuthorRef.
type User struct {
	ID         string
	Email      string
	FirstName  string
	LastName   string
	Avatar     string
	Active     bool
	LastSeenAt time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AuthorRef is a read-time resolution of a user identifier.
// Either User is set (Removed=false) or only the ID survives (Removed=true).
type AuthorRef struct {
	ID      string
	Removed bool
	User    *User
}

func ActiveAuthor(u User) AuthorRef {
	return AuthorRef{ID: u.ID, User: &u}
}

func Tombstone(id string) AuthorRef {
	return AuthorRef{ID: id, Removed: true}
}

func (a AuthorRef) DisplayName() string {
	if a.Removed || a.User == nil {
		return "removed user"
	}
	return a.User.FirstName + " " + a.User.LastName
}
