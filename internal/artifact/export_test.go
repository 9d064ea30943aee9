package artifact

// SetScryptCost lowers the key derivation cost for tests.
func SetScryptCost(n int) { scryptN = n }
