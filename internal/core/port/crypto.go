package port

// PasswordHasher hashes and verifies secrets using a vetted slow hash. The
// same primitive protects passwords, OTP codes, and recovery codes at rest.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Verify(secret string, encoded string) (bool, error)
}
