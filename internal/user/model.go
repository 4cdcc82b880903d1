package user

type User struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
	// PublicKey is the PEM-encoded public key other participants use to
	// wrap message keys for this user. Opaque to the server.
	PublicKey string `json:"public_key,omitempty"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          int    `json:"id"`
	Username    string `json:"username"`
}

type PublicKeyRequest struct {
	PublicKey string `json:"public_key" validate:"required"`
}

type PublicKeyResponse struct {
	UserID    int    `json:"user_id"`
	PublicKey string `json:"public_key"`
}
