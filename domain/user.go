package domain

// User is the authenticated identity issued by the identity provider. The
// service only reads ID to stamp and check event ownership.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}
