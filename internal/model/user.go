package model

// Identity is a backend user record. The instance returned by GET /profile is
// the locally authenticated user; any other instance is a read-only snapshot.
type Identity struct {
	ID           string `json:"_id"`
	Username     string `json:"username"`
	ProfilePhoto string `json:"profilePhoto"`
	Bio          string `json:"bio"`
	Phone        string `json:"phone"`
}

// MatchedContact is a registered user matched against the device address
// book, annotated with the name the device has saved for that number.
type MatchedContact struct {
	Identity
	SavedName string `json:"savedName"`
}
