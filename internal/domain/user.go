package domain

import "time"

// User represents an account whose health records are synced.
// Password authentication lives in a separate service; this core only
// needs the FHIR patient linkage and the timezone used for normalization.
type User struct {
	ID            string    `json:"id" db:"id"`
	Email         string    `json:"email" db:"email"`
	FHIRPatientID *string   `json:"fhir_patient_id" db:"fhir_patient_id"`
	Timezone      string    `json:"timezone" db:"timezone"`
	IsActive      bool      `json:"is_active" db:"is_active"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// TokenClaims represents validated API access-token claims
type TokenClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Exp    int64  `json:"exp"`
	Iat    int64  `json:"iat"`
}

// IsExpired checks if the token is expired
func (tc TokenClaims) IsExpired() bool {
	return time.Now().Unix() > tc.Exp
}
