package middleware

// SetCompare replaces the hash comparison used by a.
func SetCompare(a *Auth, fn func(hash, key []byte) error) { a.compare = fn }
