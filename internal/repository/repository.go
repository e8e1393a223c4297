package repository

import (
	"github.com/healthbridge/vendorsync/pkg/database"
)

// Repositories holds all repository interfaces
type Repositories struct {
	User        UserRepository
	Integration IntegrationRepository
	Credential  CredentialRepository
	Job         JobRepository
}

// NewRepositories creates all repositories
func NewRepositories(db *database.Postgres) *Repositories {
	return &Repositories{
		User:        NewUserRepository(db),
		Integration: NewIntegrationRepository(db),
		Credential:  NewCredentialRepository(db),
		Job:         NewJobRepository(db),
	}
}
